package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit applies a global token bucket to the admin surface. A limit of 0
// disables limiting.
func RateLimit(limit float64, burst int) func(http.Handler) http.Handler {
	var limiter *rate.Limiter
	if limit > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
