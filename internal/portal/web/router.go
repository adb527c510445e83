// Package web serves the portal's pages: sign-in, the signed-in landing
// pages and the role permission editor.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"portal/internal/access"
	"portal/internal/auth"
	"portal/internal/domain"
	"portal/internal/permission"
	"portal/internal/platform/telemetry"
	"portal/internal/platform/validate"
	"portal/internal/portal"
	"portal/internal/portal/adapter/session"
	"portal/internal/portal/middleware"
)

// DefaultMaxBodyBytes bounds form submissions.
const DefaultMaxBodyBytes = 64 << 10

// Options wires the router's collaborators. Metrics, MetricsHandler and
// Ready are optional.
type Options struct {
	Logger      *slog.Logger
	Auth        *auth.Service
	Permissions *permission.Service
	Gate        *access.Gate
	Codec       *session.Codec
	Cookie      middleware.SessionCookie
	// Sliding re-issues sessions past half their lifetime.
	Sliding bool

	Metrics        *telemetry.PortalMetrics
	MetricsHandler http.Handler
	Ready          func(context.Context) error

	Production      bool
	LoginRateLimit  int
	LoginRateWindow time.Duration
	MaxBodyBytes    int64
}

type handler struct {
	logger   *slog.Logger
	auth     *auth.Service
	perms    *permission.Service
	gate     *access.Gate
	codec    portal.SessionCodec
	cookie   middleware.SessionCookie
	metrics  *telemetry.PortalMetrics
	ready    func(context.Context) error
	views    *views
	validate *validator.Validate
}

// NewRouter builds the portal's HTTP handler with its middleware stack.
func NewRouter(opts Options) (http.Handler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v, err := newViews(logger, opts.Cookie.Secure)
	if err != nil {
		return nil, err
	}
	h := &handler{
		logger:   logger,
		auth:     opts.Auth,
		perms:    opts.Permissions,
		gate:     opts.Gate,
		codec:    opts.Codec,
		cookie:   opts.Cookie,
		metrics:  opts.Metrics,
		ready:    opts.Ready,
		views:    v,
		validate: validate.New(),
	}

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	var renew middleware.Renewer
	if opts.Sliding {
		renew = opts.Codec
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Logging(logger),
		middleware.Metrics(opts.Metrics),
		middleware.Recovery(logger),
		middleware.SecureHeaders(opts.Production, logger),
		middleware.MaxBodySize(maxBody),
		middleware.Gate(opts.Gate, opts.Cookie, renew, opts.Metrics),
	)
	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.methodNotAllowed)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, auth.DefaultCallback, http.StatusFound)
	})
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static assets: %w", err)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler)
	}

	loginPath := opts.Gate.LoginPath()
	r.Get(loginPath, h.showLogin)
	if opts.LoginRateLimit > 0 {
		r.With(middleware.RateLimit(opts.LoginRateLimit, opts.LoginRateWindow, http.HandlerFunc(h.loginThrottled))).
			Post(loginPath, h.handleLogin)
	} else {
		r.Post(loginPath, h.handleLogin)
	}
	r.Post("/auth/logout", h.handleLogout)

	r.Get("/dashboard", h.dashboard)
	r.Get("/profile", h.profile)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/roles", h.listRoles)
		r.Route("/roles/{roleID}/permissions", func(r chi.Router) {
			r.Get("/", h.showEditor)
			r.Post("/toggle", h.togglePermission)
			r.Post("/toggle-group", h.toggleGroup)
			r.Post("/save", h.savePermissions)
			r.Post("/discard", h.discardDraft)
		})
		r.Get("/permissions/new", h.showNewPermission)
		r.Post("/permissions/new", h.createPermission)
	})
	return r, nil
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, domain.ErrorResponse{
				Error:   "not_ready",
				Message: "a dependency is unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.views.renderError(w, r, http.StatusNotFound, "The page you asked for does not exist.", "")
}

func (h *handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.views.renderError(w, r, http.StatusMethodNotAllowed, "That action is not available here.", "")
}

// principal returns the signed-in user. Protected routes always have one
// once the gate has run; the redirect covers a misconfigured prefix list.
func (h *handler) principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := portal.PrincipalFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, access.LoginURL(h.gate.LoginPath(), r.URL.RequestURI()), http.StatusSeeOther)
	}
	return p, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding json response", "error", err)
	}
}
