// Package access decides whether a request may reach a protected page.
package access

import (
	"net/url"
	"path"
	"strings"

	"portal/internal/domain"
)

// CallbackParam is the query parameter carrying the post-login destination.
const CallbackParam = "callbackUrl"

// SessionDecoder verifies a session token locally.
type SessionDecoder interface {
	Decode(token string) (domain.Session, bool)
}

// Decision is the outcome of Authorize. When Allow is false the caller must
// redirect to Location.
type Decision struct {
	Allow     bool
	Protected bool
	Location  string
	// Session is set when a protected path was allowed.
	Session domain.Session
}

// Gate checks protected path prefixes against the session token.
type Gate struct {
	prefixes  []string
	loginPath string
	decoder   SessionDecoder
}

// NewGate creates a gate. Prefixes are matched per path segment, so
// "/admin" covers "/admin" and "/admin/roles" but not "/administrator".
func NewGate(prefixes []string, loginPath string, decoder SessionDecoder) *Gate {
	normalized := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p != "/" {
			p = strings.TrimRight(p, "/")
		}
		normalized = append(normalized, p)
	}
	return &Gate{prefixes: normalized, loginPath: loginPath, decoder: decoder}
}

// LoginPath returns the sign-in page unauthenticated users are sent to.
func (g *Gate) LoginPath() string {
	return g.loginPath
}

// Protected reports whether p falls under a protected prefix.
func (g *Gate) Protected(p string) bool {
	return g.matches(p) || g.matches(path.Clean("/"+p))
}

func (g *Gate) matches(p string) bool {
	for _, prefix := range g.prefixes {
		if prefix == "/" || p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// Authorize decides for requestURI (path plus optional query) given the raw
// session token. It never contacts the backend.
func (g *Gate) Authorize(requestURI, token string) Decision {
	p, _, _ := strings.Cut(requestURI, "?")
	if !g.Protected(p) {
		return Decision{Allow: true}
	}
	if s, ok := g.decoder.Decode(token); ok {
		return Decision{Allow: true, Protected: true, Session: s}
	}
	return Decision{Protected: true, Location: LoginURL(g.loginPath, requestURI)}
}

// LoginURL builds the sign-in URL that returns the user to callback.
func LoginURL(loginPath, callback string) string {
	if callback == "" {
		return loginPath
	}
	return loginPath + "?" + url.Values{CallbackParam: {callback}}.Encode()
}
