package middleware

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/tablecode/tablecode/internal/metrics"
	"github.com/tablecode/tablecode/internal/ratelimit"
)

// ClientIP strips the port from RemoteAddr. chi's RealIP middleware has
// already folded trusted proxy headers into RemoteAddr by the time this
// runs.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit gates requests through a redis counter keyed per client IP.
// When redis is down the request passes with a logged warning: the
// credential checks behind these routes still gate, and the forgot-PIN
// flow fails closed on its own because its state lives in the same redis.
func RateLimit(limiter *ratelimit.Limiter, policy ratelimit.Policy, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Check(r.Context(), policy, policy.Key(ClientIP(r)))
			if err != nil {
				if errors.Is(err, ratelimit.ErrRedisUnavailable) {
					logger.Warn("rate limiter unavailable, allowing request", zap.String("policy", policy.Name))
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			if !res.Allowed {
				metrics.RateLimitRejections.WithLabelValues(policy.Name).Inc()
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
