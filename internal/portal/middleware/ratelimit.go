package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns middleware that allows limit requests per client IP in
// each window. Rejected requests are handed to denied, after the Retry-After
// and X-RateLimit headers have been set. A nil denied writes a bare 429.
func RateLimit(limit int, window time.Duration, denied http.Handler) Middleware {
	opts := []httprate.Option{
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return clientIP(r), nil
		}),
	}
	if denied != nil {
		opts = append(opts, httprate.WithLimitHandler(denied.ServeHTTP))
	}
	return httprate.Limit(limit, window, opts...)
}

func clientIP(r *http.Request) string {
	// Use RemoteAddr directly. X-Forwarded-For is client-controlled and
	// must not be trusted without a validated trusted proxy list.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
