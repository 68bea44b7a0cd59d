package ml

import (
	"encoding/csv"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// CreateSampleData builds a synthetic labelled dataset. The churn label is a
// Bernoulli draw whose probability is a weighted sum of risk indicators; it is
// not calibrated against real customers. The same seed always yields the same
// dataset.
func CreateSampleData(n int, seed int64) []LabeledRecord {
	rng := rand.New(rand.NewSource(seed))
	data := make([]LabeledRecord, n)

	for i := range data {
		data[i].CustomerID = i + 1
		data[i].Record.Age = int(rng.NormFloat64()*15 + 40)
	}
	for i := range data {
		data[i].Record.Tenure = rng.ExpFloat64() * 2
	}
	for i := range data {
		data[i].Record.MonthlyCharges = rng.NormFloat64()*20 + 65
	}
	for i := range data {
		data[i].Record.TotalCharges = rng.NormFloat64()*1000 + 2000
	}
	for i := range data {
		data[i].Record.ContractType = choice(rng, ContractTypes, []float64{0.5, 0.3, 0.2})
	}
	for i := range data {
		data[i].Record.PaymentMethod = choice(rng, PaymentMethods, nil)
	}
	for i := range data {
		data[i].Record.InternetService = choice(rng, InternetServices, []float64{0.4, 0.4, 0.2})
	}
	for i := range data {
		data[i].Record.OnlineSecurity = choice(rng, YesNo, []float64{0.3, 0.7})
	}
	for i := range data {
		data[i].Record.TechSupport = choice(rng, YesNo, []float64{0.3, 0.7})
	}
	for i := range data {
		if rng.Float64() < ChurnProbability(data[i].Record) {
			data[i].Churn = 1
		}
	}
	return data
}

// ChurnProbability is the synthetic label model.
func ChurnProbability(r CustomerRecord) float64 {
	p := 0.1
	if r.ContractType == "Month-to-month" {
		p += 0.3
	}
	if r.MonthlyCharges > 80 {
		p += 0.2
	}
	if r.Tenure < 1 {
		p += 0.15
	}
	if r.OnlineSecurity == "No" {
		p += 0.1
	}
	if r.TechSupport == "No" {
		p += 0.1
	}
	return p
}

func choice(rng *rand.Rand, values []string, weights []float64) string {
	if weights == nil {
		return values[rng.Intn(len(values))]
	}
	u := rng.Float64()
	var cumulative float64
	for i, w := range weights {
		cumulative += w
		if u < cumulative {
			return values[i]
		}
	}
	return values[len(values)-1]
}

// StratifiedSplit returns shuffled train and test row indices. Each class
// contributes round(count*testRatio) rows to the test split.
func StratifiedSplit(labels []int, testRatio float64, seed int64) (train, test []int, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, errors.New("test ratio must be between 0 and 1")
	}
	if len(labels) < 2 {
		return nil, nil, errors.New("need at least 2 rows to split")
	}

	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(seed))
	for _, c := range classes {
		rows := byClass[c]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

		nTest := int(math.Round(float64(len(rows)) * testRatio))
		if len(rows) >= 2 {
			nTest = max(1, min(nTest, len(rows)-1))
		}
		test = append(test, rows[:nTest]...)
		train = append(train, rows[nTest:]...)
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test, nil
}

// WriteSampleCSV writes the dataset with a header row.
func WriteSampleCSV(path string, data []LabeledRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := append([]string{"customer_id"}, FeatureNames()...)
	header = append(header, "churn")
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range data {
		r := row.Record
		record := []string{
			strconv.Itoa(row.CustomerID),
			strconv.Itoa(r.Age),
			formatFloat(r.Tenure),
			formatFloat(r.MonthlyCharges),
			formatFloat(r.TotalCharges),
			r.ContractType,
			r.PaymentMethod,
			r.InternetService,
			r.OnlineSecurity,
			r.TechSupport,
			strconv.Itoa(row.Churn),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return file.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
