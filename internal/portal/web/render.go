package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"portal/internal/domain"
	"portal/internal/portal"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// views renders pages inside the shared layout.
type views struct {
	pages  map[string]*template.Template
	logger *slog.Logger
	secure bool
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	Flash       *Flash
	CurrentPath string
	Principal   domain.Principal
	SignedIn    bool
	Data        any
}

func newViews(logger *slog.Logger, secure bool) (*views, error) {
	funcs := template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format("02 Jan 2006 15:04 MST")
		},
	}
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	v := &views{pages: make(map[string]*template.Template), logger: logger, secure: secure}
	for _, name := range names {
		base := path.Base(name)
		if base == "layout.html" {
			continue
		}
		t, err := template.New(base).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", name)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", base, err)
		}
		v.pages[strings.TrimSuffix(base, ".html")] = t
	}
	return v, nil
}

// render writes page with status. Output is buffered so a failing template
// never leaves a half-written page behind.
func (v *views) render(w http.ResponseWriter, r *http.Request, status int, page string, data TemplateData) {
	t, ok := v.pages[page]
	if !ok {
		v.logger.Error("unknown template", "page", page)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data.CurrentPath = r.URL.Path
	if p, ok := portal.PrincipalFromContext(r.Context()); ok {
		data.Principal = p
		data.SignedIn = true
	}

	if data.Flash == nil {
		data.Flash = popFlash(w, r, v.secure)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		v.logger.Error("render page", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

type errorPage struct {
	Status    int
	Heading   string
	Message   string
	RequestID string
	Retry     string
}

// renderError shows the error card. The message is already safe for users.
func (v *views) renderError(w http.ResponseWriter, r *http.Request, status int, message, retry string) {
	v.render(w, r, status, "error", TemplateData{
		Title: http.StatusText(status),
		Data: errorPage{
			Status:    status,
			Heading:   http.StatusText(status),
			Message:   message,
			RequestID: portal.RequestIDFromContext(r.Context()),
			Retry:     retry,
		},
	})
}
