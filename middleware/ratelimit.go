package middleware

import (
	"net/http"
	"strconv"

	"github.com/shahdco/authcore/rate"
)

// RateLimit describes the ratelimit operation and its observable behavior.
//
// RateLimit returns derived values or handles for continued use when successful.
//
// Rejected requests receive 429 with a Retry-After header carrying the
// remaining window in whole seconds. A limiter backend failure answers
// 503: the guard fails closed rather than waving traffic through.
func RateLimit(limiter *rate.Limiter, policy rate.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			decision, err := limiter.Allow(r.Context(), policy, ClientIdentity(r))
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			if !decision.Allowed {
				seconds := int(decision.RetryAfter.Seconds())
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
