package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "upstream-42")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-42", rec.Header().Get("X-Request-ID"))
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestCORSPreflight(t *testing.T) {
	handler := CORSMiddleware([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/predict", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestBodyTooLarge(t *testing.T) {
	env := newTestEnv(t)

	body := `{"age": 35, "padding": "` + strings.Repeat("x", 2<<20) + `"}`
	rec := env.do(t, http.MethodPost, "/predict", body)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Request body too large", decode(t, rec)["error"])
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decode(t, rec)["error"])
}

func TestRecoveryRepanicsAbort(t *testing.T) {
	handler := RecoveryMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRequestLoggerStoresAPIRequests(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/health", nil)
	env.do(t, http.MethodPost, "/predict", map[string]interface{}{})

	stats, err := env.store.GetAPIStats(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRequests)
	assert.Equal(t, 1, stats.ErrorCount)
}

func TestEndpointResolver(t *testing.T) {
	mux := http.NewServeMux()
	noop := func(http.ResponseWriter, *http.Request) {}
	mux.HandleFunc("GET /{$}", noop)
	mux.HandleFunc("POST /predict", noop)
	resolve := endpointResolver(mux)

	tests := map[string]string{
		"/":        "/",
		"/predict": "/predict",
		"/missing": "unmatched",
	}
	for path, want := range tests {
		method := http.MethodGet
		if path == "/predict" {
			method = http.MethodPost
		}
		assert.Equal(t, want, resolve(httptest.NewRequest(method, path, nil)), path)
	}
}
