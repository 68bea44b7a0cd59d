package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"churnpredict/config"
	"churnpredict/db"
	"churnpredict/ml"
	"churnpredict/monitoring"
	"github.com/stretchr/testify/require"
)

var (
	artifactOnce sync.Once
	artifact     *ml.ModelArtifact
	artifactErr  error
)

func smallTraining() config.TrainingConfig {
	return config.TrainingConfig{
		Samples:     300,
		Seed:        11,
		TestRatio:   0.2,
		NEstimators: 8,
		MaxDepth:    5,
	}
}

func testArtifact(t *testing.T) *ml.ModelArtifact {
	t.Helper()
	artifactOnce.Do(func() {
		result, err := ml.Train(smallTraining().TrainConfig(), nil)
		if err != nil {
			artifactErr = err
			return
		}
		artifact = result.Artifact
	})
	require.NoError(t, artifactErr)
	return artifact
}

type testEnv struct {
	handler   http.Handler
	predictor *ml.Predictor
	store     *db.Store
	monitor   *monitoring.APIMonitor
	server    *Server
}

type envOption func(*Deps)

func withoutModel() envOption {
	return func(d *Deps) { d.Predictor = ml.NewPredictor("") }
}

func withoutStore() envOption {
	return func(d *Deps) { d.Store = nil }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	dir := t.TempDir()

	predictor := ml.NewPredictor("", ml.WithCacheSize(64))
	require.NoError(t, predictor.Swap(testArtifact(t)))

	store, err := db.Open(filepath.Join(dir, "predictions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	deps := Deps{
		Predictor: predictor,
		Store:     store,
		Monitor:   monitoring.NewAPIMonitor(nil),
		Training:  smallTraining(),
		ModelPath: filepath.Join(dir, "models", "churn_model.bin"),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	cfg := config.Default().Server
	server := NewServer(cfg, deps)
	env := &testEnv{
		handler: server.Handler(),
		store:   deps.Store,
		monitor: deps.Monitor,
		server:  server,
	}
	if p, ok := deps.Predictor.(*ml.Predictor); ok {
		env.predictor = p
	}
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	return payload
}

func sampleCustomer() map[string]interface{} {
	return map[string]interface{}{
		"age":              35,
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
