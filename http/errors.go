package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"churnpredict/ml"
	"go.uber.org/zap"
)

func errorBody(message string) map[string]interface{} {
	return map[string]interface{}{"error": message}
}

// writeJSON 统一JSON响应
func (h *handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	encodeJSON(h.deps.Logger, w, status, data)
}

// encodeJSON 写入JSON响应，编码失败时记录到传入的 logger
func encodeJSON(logger *zap.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode JSON", zap.Error(err))
	}
}

// writeError 将领域错误映射为 HTTP 状态码
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation  *ml.ValidationError
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		maxBytesErr *http.MaxBytesError
	)

	switch {
	case errors.As(err, &validation):
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  validation.Message,
			"kind":   validation.Kind,
			"fields": validation.Fields,
		})
	case errors.Is(err, ml.ErrBatchTooLarge):
		h.writeJSON(w, http.StatusBadRequest, errorBody("Maximum 100 customers per batch"))
	case errors.As(err, &maxBytesErr):
		h.writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("Request body too large"))
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, errTrailingData):
		h.writeJSON(w, http.StatusBadRequest, errorBody("Invalid JSON"))
	case errors.Is(err, ml.ErrModelNotLoaded):
		h.writeJSON(w, http.StatusServiceUnavailable, errorBody("Model not loaded. Please train the model first."))
	case errors.Is(err, ml.ErrUnknownCategory), errors.Is(err, ml.ErrCodecMismatch):
		h.writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	default:
		h.deps.Logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.writeJSON(w, http.StatusInternalServerError, errorBody("Internal server error"))
	}
}
