package ml

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	fixtureOnce     sync.Once
	fixtureArtifact *ModelArtifact
	fixtureErr      error
)

func testTrainConfig() TrainConfig {
	return TrainConfig{
		Samples:   400,
		Seed:      7,
		TestRatio: 0.2,
		Forest: ForestParams{
			NEstimators:     15,
			MaxDepth:        6,
			MinSamplesSplit: 2,
			MinSamplesLeaf:  1,
			ClassWeight:     ClassWeightBalanced,
			Bootstrap:       true,
			Seed:            7,
		},
	}
}

// testArtifact trains one small model shared by the package tests.
func testArtifact(t *testing.T) *ModelArtifact {
	t.Helper()
	fixtureOnce.Do(func() {
		result, err := Train(testTrainConfig(), nil)
		if err != nil {
			fixtureErr = err
			return
		}
		fixtureArtifact = result.Artifact
	})
	require.NoError(t, fixtureErr)
	return fixtureArtifact
}

func sampleRecord() CustomerRecord {
	return CustomerRecord{
		Age:             35,
		Tenure:          2.5,
		MonthlyCharges:  75.0,
		TotalCharges:    1875.0,
		ContractType:    "Month-to-month",
		PaymentMethod:   "Electronic check",
		InternetService: "Fiber optic",
		OnlineSecurity:  "No",
		TechSupport:     "No",
	}
}

func sampleRaw() map[string]interface{} {
	return map[string]interface{}{
		"age":              35.0,
		"tenure":           2.5,
		"monthly_charges":  75.0,
		"total_charges":    1875.0,
		"contract_type":    "Month-to-month",
		"payment_method":   "Electronic check",
		"internet_service": "Fiber optic",
		"online_security":  "No",
		"tech_support":     "No",
	}
}
