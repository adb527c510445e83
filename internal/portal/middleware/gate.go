package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"portal/internal/access"
	"portal/internal/domain"
	"portal/internal/platform/telemetry"
	"portal/internal/portal"
)

// SessionCookie describes the cookie carrying the session token.
type SessionCookie struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Write sets the session cookie to token.
func (c SessionCookie) Write(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (c SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Token returns the raw session token sent with r, or "".
func (c SessionCookie) Token(r *http.Request) string {
	ck, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return ck.Value
}

// Renewer re-issues sessions close to expiry. Pass nil to disable sliding
// expiry.
type Renewer interface {
	ShouldRenew(s domain.Session) bool
	Encode(p domain.Principal) (string, error)
}

// Gate returns a middleware that runs the access gate before any handler.
// Unauthenticated requests to protected paths are redirected to the sign-in
// page; allowed sessions are placed in the request context. Unprotected paths
// pass through without touching the cookie. The metrics parameter is
// optional; pass nil to skip metric recording.
func Gate(g *access.Gate, cookie SessionCookie, renew Renewer, m *telemetry.PortalMetrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cookie.Token(r)
			d := g.Authorize(r.URL.RequestURI(), token)

			if !d.Protected {
				next.ServeHTTP(w, r)
				return
			}

			if !d.Allow {
				if m != nil {
					m.RecordGateDecision(r.Context(), "redirect")
				}
				if token != "" {
					cookie.Clear(w)
				}
				status := http.StatusFound
				if r.Method != http.MethodGet && r.Method != http.MethodHead {
					status = http.StatusSeeOther
				}
				http.Redirect(w, r, d.Location, status)
				return
			}

			if m != nil {
				m.RecordGateDecision(r.Context(), "allow")
			}
			if renew != nil && renew.ShouldRenew(d.Session) {
				if fresh, err := renew.Encode(d.Session.Principal); err == nil {
					cookie.Write(w, fresh)
				} else {
					slog.Warn("renewing session failed", "error", err)
				}
			}
			next.ServeHTTP(w, r.WithContext(portal.ContextWithSession(r.Context(), d.Session)))
		})
	}
}
