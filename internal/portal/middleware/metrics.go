package middleware

import (
	"net/http"
	"time"

	"portal/internal/platform/telemetry"
	"portal/internal/portal"
)

// Metrics returns middleware that records HTTP request metrics labelled by
// route pattern. Install it on the chi router so the pattern is known once
// the handler returns.
func Metrics(m *telemetry.PortalMetrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &portal.StatusWriter{ResponseWriter: w, Code: http.StatusOK}

			next.ServeHTTP(sw, r)

			if m != nil {
				duration := time.Since(start).Seconds()
				m.RecordHTTPRequest(r.Context(), r.Method, routePattern(r), sw.Code, duration)
			}
		})
	}
}
