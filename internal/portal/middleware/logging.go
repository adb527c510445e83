package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"portal/internal/portal"
)

// Logging returns a middleware that logs each request using slog. Query
// strings and cookies are never logged.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &portal.StatusWriter{ResponseWriter: w, Code: http.StatusOK}
			entry := &portal.RequestLog{}

			next.ServeHTTP(sw, r.WithContext(portal.ContextWithRequestLog(r.Context(), entry)))

			level := slog.LevelInfo
			switch {
			case sw.Code >= 500:
				level = slog.LevelError
			case sw.Code >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routePattern(r)),
				slog.Int("status", sw.Code),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000.0),
				slog.String("request_id", portal.RequestIDFromContext(r.Context())),
				slog.String("principal_id", entry.Principal.ID),
				slog.Int64("org_id", entry.Principal.OrgID),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// routePattern returns the matched chi route, which keeps path parameters
// out of log and metric labels.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
