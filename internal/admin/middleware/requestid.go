// Package middleware contains HTTP middleware for the admin surface.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"batchplane/internal/logger"

	"github.com/google/uuid"
)

// RequestID assigns a correlation ID to each request, attaches it to the
// context and logs the request outcome.
func RequestID(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-Id")
			if reqID == "" {
				reqID = uuid.NewString()
			}

			ctx := logger.WithRequestID(r.Context(), reqID)
			w.Header().Set("X-Request-Id", reqID)

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.FromContext(ctx, log).Info("request handled",
				"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}
