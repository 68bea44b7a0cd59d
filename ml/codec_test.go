package ml

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codecRecords() []CustomerRecord {
	a := sampleRecord()
	a.Age = 20

	b := sampleRecord()
	b.Age = 40
	b.ContractType = "Two year"
	b.PaymentMethod = "Bank transfer"
	b.InternetService = "DSL"
	b.OnlineSecurity = "Yes"

	c := sampleRecord()
	c.Age = 30
	c.ContractType = "One year"
	c.PaymentMethod = "Credit card"
	return []CustomerRecord{a, b, c}
}

func TestFitCodec(t *testing.T) {
	records := codecRecords()
	state, vectors, err := FitCodec(records)
	require.NoError(t, err)
	require.Len(t, vectors, len(records))

	assert.Equal(t, FeatureNames(), state.FeatureNames)
	assert.Equal(t, []string{"Month-to-month", "One year", "Two year"}, state.Encoders[FieldContractType].Classes)
	assert.Equal(t, []string{"Bank transfer", "Credit card", "Electronic check"}, state.Encoders[FieldPaymentMethod].Classes)

	ageScaler := state.Scalers[FieldAge]
	assert.InDelta(t, 30.0, ageScaler.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(200.0/3.0), ageScaler.Std, 1e-12)

	// b: age 40, Two year -> 2, Bank transfer -> 0
	assert.InDelta(t, 10/math.Sqrt(200.0/3.0), vectors[1][0], 1e-12)
	assert.Equal(t, 2.0, vectors[1][4])
	assert.Equal(t, 0.0, vectors[1][5])
}

func TestEncodeIsDeterministic(t *testing.T) {
	state, _, err := FitCodec(codecRecords())
	require.NoError(t, err)

	first, err := state.Encode(sampleRecord())
	require.NoError(t, err)
	second, err := state.Encode(sampleRecord())
	require.NoError(t, err)

	require.Len(t, first, len(state.FeatureNames))
	for i := range first {
		assert.Equal(t, math.Float64bits(first[i]), math.Float64bits(second[i]))
	}
}

func TestEncodeUnknownCategory(t *testing.T) {
	state, _, err := FitCodec(codecRecords())
	require.NoError(t, err)

	record := sampleRecord()
	record.PaymentMethod = "Mailed check"
	_, err = state.Encode(record)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCategory))

	var unknown *UnknownCategoryError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, FieldPaymentMethod, unknown.Feature)
	assert.Equal(t, "Mailed check", unknown.Value)
}

func TestEncodeZeroVarianceIsCentredOnly(t *testing.T) {
	records := codecRecords()
	for i := range records {
		records[i].Tenure = 3
	}
	state, vectors, err := FitCodec(records)
	require.NoError(t, err)
	assert.Equal(t, 0.0, state.Scalers[FieldTenure].Std)

	for _, v := range vectors {
		assert.Equal(t, 0.0, v[1])
	}

	record := sampleRecord()
	record.Tenure = 5
	vector, err := state.Encode(record)
	require.NoError(t, err)
	assert.Equal(t, 2.0, vector[1])
	for _, value := range vector {
		assert.False(t, math.IsNaN(value) || math.IsInf(value, 0))
	}
}

func TestEncodeCodecMismatch(t *testing.T) {
	state, _, err := FitCodec(codecRecords())
	require.NoError(t, err)

	state.FeatureNames = append(append([]string(nil), state.FeatureNames...), "region")
	_, err = state.Encode(sampleRecord())
	assert.True(t, errors.Is(err, ErrCodecMismatch))
	assert.True(t, errors.Is(state.Validate(), ErrCodecMismatch))
}

func TestFitCodecEmpty(t *testing.T) {
	_, _, err := FitCodec(nil)
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestLabelEncoderInverse(t *testing.T) {
	encoder, err := fitLabelEncoder([]string{"No", "Yes", "No"})
	require.NoError(t, err)

	code, ok := encoder.Transform("Yes")
	require.True(t, ok)
	assert.Equal(t, 1, code)

	value, err := encoder.InverseTransform(code)
	require.NoError(t, err)
	assert.Equal(t, "Yes", value)

	_, err = encoder.InverseTransform(2)
	assert.Error(t, err)
}
