package middleware_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"portal/internal/portal"
	"portal/internal/portal/middleware"
)

func tag(name string, trail *[]string) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*trail = append(*trail, name)
			next.ServeHTTP(w, r)
		})
	}
}

func TestChainRunsFirstMiddlewareOutermost(t *testing.T) {
	var trail []string
	handler := middleware.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			trail = append(trail, "handler")
		}),
		tag("request-id", &trail), tag("logging", &trail), tag("recovery", &trail),
	)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	want := []string{"request-id", "logging", "recovery", "handler"}
	if len(trail) != len(want) {
		t.Fatalf("expected %v, got %v", want, trail)
	}
	for i := range want {
		if trail[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], trail[i])
		}
	}
}

func TestChainRequestIDReachesRecovery(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	var seen string
	handler := middleware.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = portal.RequestIDFromContext(r.Context())
			panic("boom")
		}),
		middleware.RequestID,
		middleware.Logging(logger),
		middleware.Recovery(logger),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/Login/validate", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if seen != "req-123" {
		t.Errorf("expected request id in handler context, got %q", seen)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("expected X-Request-ID echoed, got %q", got)
	}
}

func TestChainWithoutMiddleware(t *testing.T) {
	called := false
	handler := middleware.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !called {
		t.Error("expected handler to be called")
	}
}
