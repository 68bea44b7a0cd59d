package ml

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCustomerDataValid(t *testing.T) {
	ok, message := ValidateCustomerData(sampleRaw())
	assert.True(t, ok)
	assert.Equal(t, "Valid", message)

	record, err := ParseCustomerRecord(sampleRaw())
	require.NoError(t, err)
	assert.Equal(t, sampleRecord(), record)
}

func TestValidateMissingFieldsListsAll(t *testing.T) {
	raw := map[string]interface{}{"age": 35, "tenure": 2.5}

	ok, message := ValidateCustomerData(raw)
	assert.False(t, ok)
	assert.Contains(t, message, "Missing required fields")

	_, err := ParseCustomerRecord(raw)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, KindMissingFields, verr.Kind)
	assert.Equal(t, []string{
		"monthly_charges", "total_charges", "contract_type", "payment_method",
		"internet_service", "online_security", "tech_support",
	}, verr.Fields)
	for _, field := range verr.Fields {
		assert.Contains(t, message, field)
	}
}

func TestValidateAgeBoundaries(t *testing.T) {
	cases := []struct {
		age   interface{}
		valid bool
	}{
		{17, false},
		{18, true},
		{100, true},
		{101, false},
		{17.9, false},
		{"18", true},
	}
	for _, tc := range cases {
		raw := sampleRaw()
		raw["age"] = tc.age
		ok, message := ValidateCustomerData(raw)
		assert.Equal(t, tc.valid, ok, "age=%v message=%s", tc.age, message)
		if !tc.valid {
			assert.Equal(t, "Age must be between 18 and 100", message)
		}
	}
}

func TestValidateNumericRanges(t *testing.T) {
	cases := []struct {
		field   string
		value   interface{}
		message string
	}{
		{"tenure", -0.1, "Tenure must be non-negative"},
		{"monthly_charges", 0.0, "Monthly charges must be positive"},
		{"total_charges", -1.0, "Total charges must be non-negative"},
	}
	for _, tc := range cases {
		raw := sampleRaw()
		raw[tc.field] = tc.value
		_, err := ParseCustomerRecord(raw)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), tc.field)
		assert.Equal(t, KindOutOfRange, verr.Kind)
		assert.Equal(t, tc.message, verr.Message)
	}

	raw := sampleRaw()
	raw["tenure"] = 0.0
	raw["total_charges"] = 0.0
	ok, _ := ValidateCustomerData(raw)
	assert.True(t, ok)
}

func TestValidateInvalidContractType(t *testing.T) {
	raw := sampleRaw()
	raw["contract_type"] = "Quarterly"

	ok, message := ValidateCustomerData(raw)
	assert.False(t, ok)
	assert.Equal(t, "Contract type must be one of: Month-to-month, One year, Two year", message)
}

func TestValidateInvalidEnums(t *testing.T) {
	for field, value := range map[string]interface{}{
		"payment_method":   "Bitcoin",
		"internet_service": "Satellite",
		"online_security":  "yes",
		"tech_support":     true,
	} {
		raw := sampleRaw()
		raw[field] = value
		_, err := ParseCustomerRecord(raw)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), field)
		assert.Equal(t, KindInvalidValue, verr.Kind)
		assert.Equal(t, []string{field}, verr.Fields)
		assert.Contains(t, verr.Message, "must be one of")
	}
}

func TestValidateInvalidTypes(t *testing.T) {
	for field, value := range map[string]interface{}{
		"age":             "thirty-five",
		"tenure":          nil,
		"monthly_charges": []interface{}{1.0},
		"total_charges":   "NaN",
	} {
		raw := sampleRaw()
		raw[field] = value
		ok, message := ValidateCustomerData(raw)
		assert.False(t, ok, field)
		assert.Contains(t, message, "Invalid data type")
		assert.Contains(t, message, field)
	}
}

func TestValidateCheckOrder(t *testing.T) {
	// type errors win over range errors on other fields
	raw := sampleRaw()
	raw["age"] = 10
	raw["tenure"] = "soon"
	_, err := ParseCustomerRecord(raw)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, KindInvalidType, verr.Kind)
	assert.Equal(t, []string{"tenure"}, verr.Fields)

	// range errors win over enum errors
	raw = sampleRaw()
	raw["monthly_charges"] = -5.0
	raw["contract_type"] = "Quarterly"
	_, err = ParseCustomerRecord(raw)
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, KindOutOfRange, verr.Kind)
}

func TestValidateCoercion(t *testing.T) {
	raw := sampleRaw()
	raw["age"] = " 42 "
	raw["tenure"] = "1.5"
	raw["monthly_charges"] = 99
	raw["total_charges"] = 35.9

	record, err := ParseCustomerRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, 42, record.Age)
	assert.Equal(t, 1.5, record.Tenure)
	assert.Equal(t, 99.0, record.MonthlyCharges)
	assert.Equal(t, 35.9, record.TotalCharges)

	raw["age"] = 35.9
	record, err = ParseCustomerRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, 35, record.Age)

	raw["age"] = "35.5"
	_, err = ParseCustomerRecord(raw)
	assert.Error(t, err)
}

func TestValidateOversizedIntegerStringIsOutOfRange(t *testing.T) {
	for _, age := range []string{"99999999999999999999", "-99999999999999999999"} {
		raw := sampleRaw()
		raw["age"] = age

		_, err := ParseCustomerRecord(raw)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), age)
		assert.Equal(t, KindOutOfRange, verr.Kind, age)
		assert.Equal(t, "Age must be between 18 and 100", verr.Message)
	}
}

func TestValidateEnumIsExactMatch(t *testing.T) {
	for _, value := range []string{"Yes ", "yes", "Ｙｅｓ"} {
		raw := sampleRaw()
		raw["online_security"] = value

		_, err := ParseCustomerRecord(raw)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), value)
		assert.Equal(t, KindInvalidValue, verr.Kind, value)
	}
}
