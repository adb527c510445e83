package auth

import (
	"net/url"
	"strings"
)

// DefaultCallback is where users land after signing in without a destination.
const DefaultCallback = "/dashboard"

// SafeCallback returns raw if it is a local absolute path, DefaultCallback
// otherwise. It guards the post-login redirect against open redirects.
func SafeCallback(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return DefaultCallback
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return DefaultCallback
	}
	if strings.ContainsAny(raw, "\\\r\n\t") {
		return DefaultCallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return DefaultCallback
	}
	return raw
}
