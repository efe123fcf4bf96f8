package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// rateLimitMiddleware charges each request against the client's token
// bucket. Health and metrics probes are exempt so monitoring never starves
// behind a noisy client.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		key := "ip:" + clientIP(r)
		res, err := s.limiter.Allow(r.Context(), key)
		if err != nil {
			s.logger.Error("Rate limit check failed",
				zap.String("key", key),
				zap.Error(err),
			)
			WriteError(w, http.StatusInternalServerError, "internal", nil)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			s.logger.Warn("Request rate limited",
				zap.String("key", key),
				zap.String("path", r.URL.Path),
				zap.Duration("retry_after", res.RetryAfter),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
			WriteError(w, http.StatusTooManyRequests, "rate_limited", map[string]interface{}{
				"retryAfter": res.RetryAfter.String(),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP identifies the caller, trusting proxy headers when present.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			xff = xff[:idx]
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
