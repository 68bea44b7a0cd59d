package ml

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSampleDataIsReproducible(t *testing.T) {
	first := CreateSampleData(500, 42)
	second := CreateSampleData(500, 42)
	assert.Equal(t, first, second)

	other := CreateSampleData(500, 43)
	assert.NotEqual(t, first, other)
}

func TestCreateSampleDataShape(t *testing.T) {
	data := CreateSampleData(1000, 42)
	require.Len(t, data, 1000)

	churned := 0
	for i, row := range data {
		assert.Equal(t, i+1, row.CustomerID)
		assert.Contains(t, []int{0, 1}, row.Churn)
		assert.GreaterOrEqual(t, row.Record.Tenure, 0.0)
		assert.Contains(t, ContractTypes, row.Record.ContractType)
		assert.Contains(t, PaymentMethods, row.Record.PaymentMethod)
		assert.Contains(t, InternetServices, row.Record.InternetService)
		assert.Contains(t, YesNo, row.Record.OnlineSecurity)
		assert.Contains(t, YesNo, row.Record.TechSupport)
		churned += row.Churn
	}
	assert.Greater(t, churned, 0)
	assert.Less(t, churned, 1000)
}

func TestChurnProbability(t *testing.T) {
	r := sampleRecord()
	// month-to-month, no security, no support; 75 <= 80, tenure 2.5 >= 1
	assert.InDelta(t, 0.6, ChurnProbability(r), 1e-12)

	r.MonthlyCharges = 95
	r.Tenure = 0.5
	assert.InDelta(t, 0.95, ChurnProbability(r), 1e-12)

	r = sampleRecord()
	r.ContractType = "Two year"
	r.OnlineSecurity = "Yes"
	r.TechSupport = "Yes"
	assert.InDelta(t, 0.1, ChurnProbability(r), 1e-12)
}

func TestStratifiedSplit(t *testing.T) {
	labels := make([]int, 100)
	for i := 80; i < 100; i++ {
		labels[i] = 1
	}

	train, test, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, train, 80)
	assert.Len(t, test, 20)

	positives := 0
	for _, i := range test {
		positives += labels[i]
	}
	assert.Equal(t, 4, positives)

	all := append(append([]int(nil), train...), test...)
	sort.Ints(all)
	for i, idx := range all {
		assert.Equal(t, i, idx)
	}

	again, _, err := StratifiedSplit(labels, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, again)
}

func TestStratifiedSplitInvalid(t *testing.T) {
	_, _, err := StratifiedSplit([]int{0, 1}, 0, 1)
	assert.Error(t, err)
	_, _, err = StratifiedSplit([]int{0, 1}, 1, 1)
	assert.Error(t, err)
	_, _, err = StratifiedSplit([]int{0}, 0.2, 1)
	assert.Error(t, err)
}

func TestWriteSampleCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "sample_data.csv")
	data := CreateSampleData(25, 1)
	require.NoError(t, WriteSampleCSV(path, data))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 26)
	assert.Equal(t, "customer_id", rows[0][0])
	assert.Equal(t, "churn", rows[0][len(rows[0])-1])
	assert.Len(t, rows[1], 11)
}
