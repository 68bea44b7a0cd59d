package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const validMessage = "Valid"

type enumRule struct {
	field   string
	label   string
	allowed []string
}

var enumRules = []enumRule{
	{field: FieldContractType, label: "Contract type", allowed: ContractTypes},
	{field: FieldPaymentMethod, label: "Payment method", allowed: PaymentMethods},
	{field: FieldInternetService, label: "Internet service", allowed: InternetServices},
	{field: FieldOnlineSecurity, label: "Online security", allowed: YesNo},
	{field: FieldTechSupport, label: "Tech support", allowed: YesNo},
}

// ValidateCustomerData checks a decoded JSON object against the customer schema.
// It returns (true, "Valid") or false with the first failure's message.
func ValidateCustomerData(raw map[string]interface{}) (bool, string) {
	if _, err := ParseCustomerRecord(raw); err != nil {
		return false, err.Error()
	}
	return true, validMessage
}

// ParseCustomerRecord validates raw and converts it to a CustomerRecord.
// Checks run in order: presence, type coercion, numeric ranges, categorical
// membership. The first failing check is returned as a *ValidationError.
func ParseCustomerRecord(raw map[string]interface{}) (CustomerRecord, error) {
	var missing []string
	for _, field := range RequiredFields() {
		if _, ok := raw[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return CustomerRecord{}, &ValidationError{
			Kind:    KindMissingFields,
			Fields:  missing,
			Message: "Missing required fields: " + strings.Join(missing, ", "),
		}
	}

	age, ok := coerceInt(raw[FieldAge])
	if !ok {
		return CustomerRecord{}, typeError(FieldAge, "an integer")
	}
	floats := make(map[string]float64, 3)
	for _, field := range []string{FieldTenure, FieldMonthlyCharges, FieldTotalCharges} {
		value, ok := coerceFloat(raw[field])
		if !ok {
			return CustomerRecord{}, typeError(field, "numeric")
		}
		floats[field] = value
	}

	switch {
	case age < 18 || age > 100:
		return CustomerRecord{}, rangeError(FieldAge, "Age must be between 18 and 100")
	case floats[FieldTenure] < 0:
		return CustomerRecord{}, rangeError(FieldTenure, "Tenure must be non-negative")
	case floats[FieldMonthlyCharges] <= 0:
		return CustomerRecord{}, rangeError(FieldMonthlyCharges, "Monthly charges must be positive")
	case floats[FieldTotalCharges] < 0:
		return CustomerRecord{}, rangeError(FieldTotalCharges, "Total charges must be non-negative")
	}

	categories := make(map[string]string, len(enumRules))
	for _, rule := range enumRules {
		value, ok := matchEnum(raw[rule.field], rule.allowed)
		if !ok {
			return CustomerRecord{}, &ValidationError{
				Kind:    KindInvalidValue,
				Fields:  []string{rule.field},
				Message: fmt.Sprintf("%s must be one of: %s", rule.label, strings.Join(rule.allowed, ", ")),
			}
		}
		categories[rule.field] = value
	}

	return CustomerRecord{
		Age:             age,
		Tenure:          floats[FieldTenure],
		MonthlyCharges:  floats[FieldMonthlyCharges],
		TotalCharges:    floats[FieldTotalCharges],
		ContractType:    categories[FieldContractType],
		PaymentMethod:   categories[FieldPaymentMethod],
		InternetService: categories[FieldInternetService],
		OnlineSecurity:  categories[FieldOnlineSecurity],
		TechSupport:     categories[FieldTechSupport],
	}, nil
}

func typeError(field, want string) *ValidationError {
	return &ValidationError{
		Kind:    KindInvalidType,
		Fields:  []string{field},
		Message: fmt.Sprintf("Invalid data type: %s must be %s", field, want),
	}
}

func rangeError(field, message string) *ValidationError {
	return &ValidationError{Kind: KindOutOfRange, Fields: []string{field}, Message: message}
}

// coerceInt accepts JSON numbers (truncated toward zero), integer strings and
// booleans. Integer strings wider than int are clamped, not rejected.
func coerceInt(v interface{}) (int, bool) {
	switch value := v.(type) {
	case int:
		return value, true
	case int32:
		return int(value), true
	case int64:
		return clampInt(float64(value)), true
	case float32:
		return floatToInt(float64(value))
	case float64:
		return floatToInt(value)
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return clampInt(float64(i)), true
		}
		f, err := value.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case string:
		trimmed := strings.TrimSpace(value)
		i, err := strconv.Atoi(trimmed)
		if errors.Is(err, strconv.ErrRange) {
			// integral but too wide; clamp so the range check reports it
			f, ferr := strconv.ParseFloat(trimmed, 64)
			if ferr != nil {
				return 0, false
			}
			return clampInt(f), true
		}
		if err != nil {
			return 0, false
		}
		return clampInt(float64(i)), true
	case bool:
		if value {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// coerceFloat accepts JSON numbers, numeric strings and booleans. NaN and
// infinities are rejected.
func coerceFloat(v interface{}) (float64, bool) {
	var f float64
	switch value := v.(type) {
	case int:
		f = float64(value)
	case int32:
		f = float64(value)
	case int64:
		f = float64(value)
	case float32:
		f = float64(value)
	case float64:
		f = value
	case json.Number:
		parsed, err := value.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if value {
			f = 1
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return clampInt(math.Trunc(f)), true
}

// clampInt keeps huge values out of range instead of overflowing into it.
func clampInt(f float64) int {
	switch {
	case f > math.MaxInt32:
		return math.MaxInt32
	case f < math.MinInt32:
		return math.MinInt32
	}
	return int(f)
}

func matchEnum(v interface{}, allowed []string) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	for _, candidate := range allowed {
		if s == candidate {
			return candidate, true
		}
	}
	return "", false
}
