package web

import (
	"errors"
	"net/http"
	"strings"

	"portal/internal/access"
	"portal/internal/auth"
	"portal/internal/domain"
	"portal/internal/platform/validate"
)

type loginForm struct {
	OrgCode  string `form:"orgCode" validate:"required,numeric,max=18"`
	UserName string `form:"userName" validate:"required,max=100"`
	Password string `form:"password" validate:"required,max=256"`
}

type loginPage struct {
	Form     loginForm
	Callback string
	Errors   map[string]string
}

func (h *handler) showLogin(w http.ResponseWriter, r *http.Request) {
	callback := r.URL.Query().Get(access.CallbackParam)
	if _, ok := h.cookieSession(r); ok {
		http.Redirect(w, r, auth.SafeCallback(callback), http.StatusFound)
		return
	}
	h.renderLogin(w, r, http.StatusOK, loginPage{Callback: callback})
}

func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLogin(w, r, http.StatusBadRequest, loginPage{
			Errors: map[string]string{"general": "The sign-in form could not be read. Please try again."},
		})
		return
	}
	form := loginForm{
		OrgCode:  strings.TrimSpace(r.PostFormValue("orgCode")),
		UserName: strings.TrimSpace(r.PostFormValue("userName")),
		Password: r.PostFormValue("password"),
	}
	page := loginPage{Form: form, Callback: r.PostFormValue(access.CallbackParam)}
	page.Form.Password = ""

	if err := validate.Struct(h.validate, form); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			page.Errors = verr.Fields
		} else {
			page.Errors = map[string]string{"general": "Enter your organisation code, username and password."}
		}
		h.recordLogin(r, "invalid")
		h.renderLogin(w, r, http.StatusBadRequest, page)
		return
	}
	orgID, err := auth.ParseOrgID(form.OrgCode)
	if err != nil {
		page.Errors = map[string]string{"orgCode": "must be a positive number"}
		h.recordLogin(r, "invalid")
		h.renderLogin(w, r, http.StatusBadRequest, page)
		return
	}

	p, err := h.auth.Authenticate(r.Context(), form.UserName, form.Password, orgID)
	switch {
	case auth.IsInputError(err):
		page.Errors = map[string]string{"general": "Enter your organisation code, username and password."}
		h.renderLogin(w, r, http.StatusBadRequest, page)
		return
	case err != nil:
		page.Errors = map[string]string{"general": "Invalid username or password."}
		h.renderLogin(w, r, http.StatusUnauthorized, page)
		return
	}

	token, err := h.codec.Encode(p)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "issuing session failed", "error", err)
		h.views.renderError(w, r, http.StatusInternalServerError, domain.GenericBackendMessage, h.gate.LoginPath())
		return
	}
	h.cookie.Write(w, token)
	h.logger.InfoContext(r.Context(), "signed in", "principal_id", p.ID, "org_id", p.OrgID)
	setFlash(w, h.cookie.Secure, "success", "Signed in as "+p.UserName+".")
	http.Redirect(w, r, auth.SafeCallback(page.Callback), http.StatusSeeOther)
}

// loginThrottled answers sign-in attempts rejected by the rate limiter.
func (h *handler) loginThrottled(w http.ResponseWriter, r *http.Request) {
	h.recordLogin(r, "throttled")
	h.renderLogin(w, r, http.StatusTooManyRequests, loginPage{
		Callback: r.URL.Query().Get(access.CallbackParam),
		Errors:   map[string]string{"general": "Too many sign-in attempts. Please wait a minute and try again."},
	})
}

func (h *handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookie.Clear(w)
	if s, ok := h.cookieSession(r); ok {
		h.logger.InfoContext(r.Context(), "signed out", "principal_id", s.Principal.ID, "org_id", s.Principal.OrgID)
	}
	setFlash(w, h.cookie.Secure, "info", "You have been signed out.")
	http.Redirect(w, r, h.gate.LoginPath(), http.StatusSeeOther)
}

// cookieSession decodes the session cookie on open routes, which the gate
// lets through without looking at it.
func (h *handler) cookieSession(r *http.Request) (domain.Session, bool) {
	token := h.cookie.Token(r)
	if token == "" {
		return domain.Session{}, false
	}
	return h.codec.Decode(token)
}

func (h *handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, page loginPage) {
	h.views.render(w, r, status, "login", TemplateData{Title: "Sign in", Data: page})
}

func (h *handler) recordLogin(r *http.Request, result string) {
	if h.metrics != nil {
		h.metrics.RecordLogin(r.Context(), result)
	}
}
