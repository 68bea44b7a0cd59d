package monitoring

import (
	"math"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics 当前 API 指标快照
type Metrics struct {
	UptimeSeconds     float64 `json:"uptime_seconds"`
	TotalRequests     int64   `json:"total_requests"`
	TotalPredictions  int64   `json:"total_predictions"`
	ErrorCount        int64   `json:"error_count"`
	ErrorRate         float64 `json:"error_rate"`
	RequestsPerMinute float64 `json:"requests_per_minute"`
	ModelGeneration   uint64  `json:"model_generation"`
	ConnectedClients  int     `json:"connected_clients"`
}

// APIMonitor 请求与预测计数器，同时导出为 Prometheus 指标
type APIMonitor struct {
	mu               sync.RWMutex
	requestCount     int64
	predictionCount  int64
	errorCount       int64
	startTime        time.Time
	generation       uint64
	connectedClients func() int

	logger   *zap.Logger
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	predictions  *prometheus.CounterVec
	probability  prometheus.Histogram
	modelLoaded  prometheus.Gauge
	modelVersion prometheus.Gauge
}

// NewAPIMonitor 创建监控器；每个实例使用独立的 registry，测试中可重复创建
func NewAPIMonitor(logger *zap.Logger) *APIMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()

	m := &APIMonitor{
		startTime: time.Now(),
		logger:    logger,
		registry:  registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_api_requests_total",
			Help: "API requests by endpoint, method and status code.",
		}, []string{"endpoint", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "churn_api_request_duration_seconds",
			Help:    "API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "churn_predictions_total",
			Help: "Predictions served by predicted class.",
		}, []string{"prediction"}),
		probability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "churn_prediction_probability",
			Help:    "Distribution of predicted churn probabilities.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		modelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "churn_model_loaded",
			Help: "1 when a model artifact is loaded.",
		}),
		modelVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "churn_model_generation",
			Help: "Generation counter of the serving model artifact.",
		}),
	}

	registry.MustRegister(
		m.requests,
		m.latency,
		m.predictions,
		m.probability,
		m.modelLoaded,
		m.modelVersion,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// LogRequest 记录一次 API 请求，状态码 >= 400 计为错误
func (m *APIMonitor) LogRequest(endpoint, method string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	m.requestCount++
	if statusCode >= 400 {
		m.errorCount++
	}
	count := m.requestCount
	m.mu.Unlock()

	m.requests.WithLabelValues(endpoint, method, strconv.Itoa(statusCode)).Inc()
	m.latency.WithLabelValues(endpoint).Observe(duration.Seconds())

	m.logger.Info("api request",
		zap.String("endpoint", endpoint),
		zap.String("method", method),
		zap.Int("status_code", statusCode),
		zap.Float64("response_time_ms", roundTo(float64(duration.Microseconds())/1000, 2)),
		zap.Int64("request_count", count),
	)
}

// LogPrediction 记录一次预测
func (m *APIMonitor) LogPrediction(input interface{}, prediction int, probability float64) {
	m.mu.Lock()
	m.predictionCount++
	count := m.predictionCount
	m.mu.Unlock()

	m.predictions.WithLabelValues(strconv.Itoa(prediction)).Inc()
	m.probability.Observe(probability)

	m.logger.Info("prediction",
		zap.Int("prediction", prediction),
		zap.Float64("confidence", probability),
		zap.Any("input_features", input),
		zap.Int64("prediction_count", count),
	)
}

// SetModelState 更新模型加载状态
func (m *APIMonitor) SetModelState(loaded bool, generation uint64) {
	m.mu.Lock()
	m.generation = generation
	m.mu.Unlock()

	if loaded {
		m.modelLoaded.Set(1)
	} else {
		m.modelLoaded.Set(0)
	}
	m.modelVersion.Set(float64(generation))
}

// SetClientCounter 注入 WebSocket 连接数来源
func (m *APIMonitor) SetClientCounter(fn func() int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectedClients = fn
}

// GetMetrics 获取当前指标
func (m *APIMonitor) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime).Seconds()
	metrics := Metrics{
		UptimeSeconds:    roundTo(uptime, 2),
		TotalRequests:    m.requestCount,
		TotalPredictions: m.predictionCount,
		ErrorCount:       m.errorCount,
		ErrorRate:        roundTo(float64(m.errorCount)/float64(max(m.requestCount, 1))*100, 2),
		ModelGeneration:  m.generation,
	}
	if uptime > 0 {
		metrics.RequestsPerMinute = roundTo(float64(m.requestCount)/(uptime/60), 2)
	}
	if m.connectedClients != nil {
		metrics.ConnectedClients = m.connectedClients()
	}
	return metrics
}

// GetSystemStats 获取运行时统计
func (m *APIMonitor) GetSystemStats() map[string]interface{} {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return map[string]interface{}{
		"uptime":     time.Since(m.startTime).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":      ms.Alloc,
			"heap_alloc": ms.HeapAlloc,
			"heap_sys":   ms.HeapSys,
			"gc_count":   ms.NumGC,
		},
		"num_cpu": runtime.NumCPU(),
	}
}

// Handler 导出 Prometheus 格式
func (m *APIMonitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
