package middleware

import (
	"net/http"

	"gsm-api/internal/logger"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// RequestID：沿用上游传入的请求 id，否则生成 UUID；写回响应头并挂到 context
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
