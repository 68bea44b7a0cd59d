// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"churnpredict/config"
	"churnpredict/db"
	"churnpredict/ml"
	"churnpredict/monitoring"
	"go.uber.org/zap"
)

// ModelService 预测服务，*ml.Predictor 实现该接口
type ModelService interface {
	ml.ChurnPredictor
	Swap(artifact *ml.ModelArtifact) error
	Generation() uint64
}

// Deps 服务依赖；Store 和 Hub 可为空
type Deps struct {
	Predictor ModelService
	Store     *db.Store
	Monitor   *monitoring.APIMonitor
	Hub       *monitoring.Hub
	Logger    *zap.Logger
	Training  config.TrainingConfig
	ModelPath string
}

// Server HTTP服务器
type Server struct {
	server  *http.Server
	handler http.Handler
	logger  *zap.Logger
}

// NewServer 创建HTTP服务器
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Monitor == nil {
		deps.Monitor = monitoring.NewAPIMonitor(deps.Logger)
	}
	if deps.Hub != nil {
		deps.Monitor.SetClientCounter(deps.Hub.ClientCount)
	}
	deps.Monitor.SetModelState(deps.Predictor.Ready(), deps.Predictor.Generation())

	mux := http.NewServeMux()
	RegisterHandlers(mux, newHandlers(deps))

	requestLogger := RequestLogger{
		Logger:   deps.Logger,
		Monitor:  deps.Monitor,
		Store:    deps.Store,
		Endpoint: endpointResolver(mux),
	}

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(deps.Logger),         // 1. 恢复中间件（最先执行，捕获panic）
		requestLogger.Middleware,                // 2. 日志与监控
		SecurityHeadersMiddleware,               // 3. 安全头中间件
		CORSMiddleware(cfg.AllowedOrigins),      // 4. CORS中间件
		RequestSizeMiddleware(cfg.MaxBodyBytes), // 5. 请求体大小限制
	)
	handler := chain(mux)

	return &Server{
		server: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		handler: handler,
		logger:  deps.Logger,
	}
}

// endpointResolver 返回路由模式作为指标标签，未匹配的路径归为一类
func endpointResolver(mux *http.ServeMux) func(*http.Request) string {
	return func(r *http.Request) string {
		_, pattern := mux.Handler(r)
		if pattern == "" {
			return "unmatched"
		}
		if i := strings.IndexByte(pattern, ' '); i >= 0 {
			pattern = pattern[i+1:]
		}
		return strings.TrimSuffix(pattern, "{$}")
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Handler 返回完整的中间件链，便于测试
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
