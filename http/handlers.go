package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"churnpredict/db"
	"churnpredict/ml"
	"churnpredict/monitoring"
	"go.uber.org/zap"
)

const serviceName = "Customer Churn Prediction API"

const (
	defaultStatsDays   = 7
	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

type handlers struct {
	deps       Deps
	retraining atomic.Bool
	// train is replaced in tests
	train func(ml.TrainConfig, *zap.Logger) (*ml.TrainResult, error)
}

func newHandlers(deps Deps) *handlers {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &handlers{deps: deps, train: ml.Train}
}

func RegisterHandlers(mux *http.ServeMux, h *handlers) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /model/info", h.handleModelInfo)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("POST /batch_predict", h.handleBatchPredict)
	mux.HandleFunc("POST /retrain", h.handleRetrain)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	mux.Handle("GET /metrics/prometheus", h.deps.Monitor.Handler())
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /predictions/recent", h.handleRecentPredictions)
	if h.deps.Hub != nil {
		mux.Handle("GET /ws/predictions", h.deps.Hub)
	}
}

type endpointDoc struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var endpointDocs = []endpointDoc{
	{http.MethodGet, "/health", "Check API health status"},
	{http.MethodGet, "/model/info", "Get information about the loaded model"},
	{http.MethodPost, "/predict", "Predict churn for a single customer"},
	{http.MethodPost, "/batch_predict", "Predict churn for up to 100 customers (array of customer objects)"},
	{http.MethodPost, "/retrain", "Retrain the model on fresh synthetic data"},
	{http.MethodGet, "/metrics", "API monitoring metrics"},
	{http.MethodGet, "/metrics/prometheus", "Prometheus exposition format"},
	{http.MethodGet, "/stats", "Prediction and API statistics for the last N days (?days=7)"},
	{http.MethodGet, "/predictions/recent", "Most recent predictions (?limit=10)"},
	{http.MethodGet, "/ws/predictions", "WebSocket feed of live predictions"},
}

func (h *handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":        serviceName,
		"model_loaded":   h.deps.Predictor.Ready(),
		"endpoints":      endpointDocs,
		"example_input":  exampleCustomer,
		"max_batch_size": ml.MaxBatchSize,
	})
}

var exampleCustomer = map[string]interface{}{
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

const healthPingTimeout = 2 * time.Second

// handleHealth 服务始终报告 healthy；数据库状态单独给出
func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	database := "not configured"
	if h.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		database = "connected"
		if err := h.deps.Store.Ping(ctx); err != nil {
			h.deps.Logger.Warn("database ping failed", zap.Error(err))
			database = "unavailable"
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"service":      serviceName,
		"model_loaded": h.deps.Predictor.Ready(),
		"database":     database,
	})
}

func (h *handlers) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.deps.Predictor.GetModelInfo())
}

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	raw, ok := payload.(map[string]interface{})
	if !ok || len(raw) == 0 {
		h.writeJSON(w, http.StatusBadRequest, errorBody("No data provided"))
		return
	}

	record, err := ml.ParseCustomerRecord(raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.deps.Predictor.PredictSingle(record)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.recordPrediction(r, "/predict", raw, nil, result)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"prediction": result,
		"input_data": raw,
	})
}

func (h *handlers) handleBatchPredict(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, ok := payload.([]interface{})
	if !ok || len(items) == 0 {
		h.writeJSON(w, http.StatusBadRequest, errorBody("Data must be a list of customer objects"))
		return
	}
	if len(items) > ml.MaxBatchSize {
		h.writeError(w, r, ml.ErrBatchTooLarge)
		return
	}

	records := make([]ml.CustomerRecord, len(items))
	raws := make([]map[string]interface{}, len(items))
	for i, item := range items {
		raw, ok := item.(map[string]interface{})
		if !ok {
			h.writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("Customer %d: Data must be a customer object", i)))
			return
		}
		record, err := ml.ParseCustomerRecord(raw)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("Customer %d: %s", i, err)))
			return
		}
		records[i] = record
		raws[i] = raw
	}

	results, err := h.deps.Predictor.PredictBatch(records)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	for i, result := range results {
		index := i
		h.recordPrediction(r, "/batch_predict", raws[i], &index, result.PredictionResult)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"predictions":     results,
		"total_customers": len(results),
	})
}

// recordPrediction 写入预测日志、更新指标并推送到 WebSocket
func (h *handlers) recordPrediction(r *http.Request, endpoint string, raw map[string]interface{}, index *int, result ml.PredictionResult) {
	var elapsed float64
	if start := GetStartTime(r.Context()); !start.IsZero() {
		elapsed = float64(time.Since(start).Microseconds()) / 1000
	}

	h.deps.Monitor.LogPrediction(raw, result.ChurnPrediction, result.ChurnProbability)

	if h.deps.Store != nil {
		_, err := h.deps.Store.StorePrediction(context.WithoutCancel(r.Context()), db.PredictionLog{
			InputData:      raw,
			Prediction:     result.ChurnPrediction,
			Probability:    result.ChurnProbability,
			ModelVersion:   modelVersion(h.deps.Predictor.Generation()),
			ResponseTimeMs: elapsed,
			Endpoint:       endpoint,
		})
		if err != nil {
			h.deps.Logger.Warn("failed to store prediction", zap.Error(err))
		}
	}

	if h.deps.Hub != nil {
		err := h.deps.Hub.PublishPrediction(monitoring.PredictionMessage{
			Endpoint:         endpoint,
			CustomerIndex:    index,
			ChurnPrediction:  result.ChurnPrediction,
			ChurnProbability: result.ChurnProbability,
			ResponseTimeMs:   elapsed,
			RequestID:        GetRequestID(r.Context()),
		})
		if err != nil {
			h.deps.Logger.Warn("failed to publish prediction", zap.Error(err))
		}
	}
}

func (h *handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"metrics": h.deps.Monitor.GetMetrics(),
		"system":  h.deps.Monitor.GetSystemStats(),
	})
}

func (h *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, errorBody("Database not configured"))
		return
	}
	days, err := queryInt(r, "days", defaultStatsDays, 1, 365)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	ctx := r.Context()
	predictions, err := h.deps.Store.GetPredictionStats(ctx, days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api, err := h.deps.Store.GetAPIStats(ctx, days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response := map[string]interface{}{
		"success":     true,
		"days":        days,
		"predictions": predictions,
		"api":         api,
	}
	latest, err := h.deps.Store.LatestModelPerformance(ctx)
	switch {
	case err == nil:
		response["model_performance"] = latest
	case !errors.Is(err, db.ErrNoRows):
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *handlers) handleRecentPredictions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, errorBody("Database not configured"))
		return
	}
	limit, err := queryInt(r, "limit", defaultRecentLimit, 1, maxRecentLimit)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	records, err := h.deps.Store.GetRecentPredictions(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"predictions": records,
	})
}

// errTrailingData 请求体在第一个 JSON 值之后还有内容
var errTrailingData = errors.New("unexpected data after JSON value")

// decodeBody 解码单个 JSON 值；数字保持 float64，空请求体返回 nil
func decodeBody(r *http.Request) (interface{}, error) {
	dec := json.NewDecoder(r.Body)
	var payload interface{}
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	var extra json.RawMessage
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return payload, nil
	case err != nil:
		return nil, err
	default:
		return nil, errTrailingData
	}
}

func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", name, lo, hi)
	}
	return v, nil
}

func modelVersion(generation uint64) string {
	return "gen-" + strconv.FormatUint(generation, 10)
}
