package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/Immortalbear27/log_level_api/internal/cache"
)

// keyNamespace scopes this service's windows inside the shared rate-limit
// prefix; the request path is appended so every endpoint gets its own
// window.
const keyNamespace = "log_api:"

// Key returns the window key for an endpoint path.
func Key(path string) string {
	return cache.RateKeyPrefix + keyNamespace + path
}

// Middleware guards next behind the limiter. Rejected requests receive a
// 429 with a Retry-After header and a JSON error body. onReject, when
// non-nil, runs once per rejection so callers can count them.
func Middleware(l *Limiter, onReject func(r *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dec := l.Acquire(r.Context(), Key(r.URL.Path))
			if !dec.Allowed {
				if onReject != nil {
					onReject(r)
				}
				retryAfter := int(math.Ceil(dec.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
