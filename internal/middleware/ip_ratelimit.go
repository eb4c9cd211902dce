package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/beaverapp/beaver-server-go/internal/audit"
	"github.com/beaverapp/beaver-server-go/internal/service"
)

// IPRateLimitMiddleware enforces a per-IP sliding window limit on a route
// group. SOS endpoints are abuse targets; keying by client IP keeps one
// bad actor from exhausting the alert pipeline for everyone else.
type IPRateLimitMiddleware struct {
	limiter *service.RateLimiter
	limit   int
	window  time.Duration
	prefix  string
}

func NewIPRateLimitMiddleware(limiter *service.RateLimiter, limit int, window time.Duration, prefix string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// chi's RealIP middleware runs earlier, so RemoteAddr already
		// reflects X-Forwarded-For behind the proxy.
		ip := r.RemoteAddr

		allowed, resetAt := m.limiter.CheckIPLimit(r.Context(), m.prefix, ip, m.limit, m.window)

		if !allowed {
			secondsLeft := int(time.Until(resetAt).Seconds()) + 1
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"scope": m.prefix},
			})
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secondsLeft))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "Too many requests. Please try again later.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
