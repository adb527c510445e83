package portal

import (
	"context"
	"net/http"

	"portal/internal/domain"
)

// SessionCodec turns principals into signed session tokens and back.
type SessionCodec interface {
	Encode(p domain.Principal) (string, error)
	// Decode returns ok=false for any missing, expired, tampered or
	// principal-less token.
	Decode(token string) (domain.Session, bool)
}

// StatusWriter wraps http.ResponseWriter to capture the status code.
type StatusWriter struct {
	http.ResponseWriter
	Code int
}

func (sw *StatusWriter) WriteHeader(code int) {
	sw.Code = code
	sw.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sw *StatusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// PrincipalFromContext extracts the authenticated principal from a request context.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	s, ok := SessionFromContext(ctx)
	return s.Principal, ok
}

// SessionFromContext extracts the decoded session from a request context.
func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(domain.Session)
	return s, ok
}

// ContextWithSession stores the decoded session in the context and notes the
// principal on the request's access log entry, if any.
func ContextWithSession(ctx context.Context, s domain.Session) context.Context {
	if l := RequestLogFromContext(ctx); l != nil {
		l.Principal = s.Principal
	}
	return context.WithValue(ctx, sessionKey{}, s)
}

type sessionKey struct{}

// RequestLog collects facts learned by inner handlers for the access log
// written by an outer one.
type RequestLog struct {
	Principal domain.Principal
}

// ContextWithRequestLog attaches l to the context.
func ContextWithRequestLog(ctx context.Context, l *RequestLog) context.Context {
	return context.WithValue(ctx, requestLogKey{}, l)
}

// RequestLogFromContext returns the attached RequestLog or nil.
func RequestLogFromContext(ctx context.Context) *RequestLog {
	l, _ := ctx.Value(requestLogKey{}).(*RequestLog)
	return l
}

type requestLogKey struct{}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID stores the request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

type requestIDKey struct{}
