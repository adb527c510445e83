package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"portal/internal/domain"
	"portal/internal/portal"
)

// Recovery catches panics from downstream handlers. JSON clients get an
// ErrorResponse, browsers a plain error page.
func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}
				reqID := portal.RequestIDFromContext(r.Context())
				logger.Error("panic recovered",
					"error", err,
					"request_id", reqID,
					"stack", string(debug.Stack()),
				)
				if !strings.Contains(r.Header.Get("Accept"), "application/json") {
					http.Error(w, "Something went wrong. Reference: "+reqID, http.StatusInternalServerError)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				if encErr := json.NewEncoder(w).Encode(domain.ErrorResponse{
					Error:   "internal_error",
					Message: "an unexpected error occurred",
				}); encErr != nil {
					logger.Error("encoding error response", "error", encErr)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
