package web

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"portal/internal/domain"
	"portal/internal/permission"
	"portal/internal/platform/validate"
)

type editorPage struct {
	RoleID   int64
	RoleName string
	Query    string
	Groups   []permission.Group
	Enabled  int
	Total    int
	Dirty    bool
	Granted  int
	Revoked  int
	Roles    []domain.Role
	Saving   bool
}

func newEditorPage(e *permission.Editor, query string, roles []domain.Role) editorPage {
	enabled, total := e.Count()
	granted, revoked := e.Changes()
	return editorPage{
		RoleID:   e.RoleID(),
		RoleName: e.RoleName(),
		Query:    query,
		Groups:   e.FilterBySearch(query),
		Enabled:  enabled,
		Total:    total,
		Dirty:    e.Dirty(),
		Granted:  len(granted),
		Revoked:  len(revoked),
		Roles:    roles,
	}
}

func editorURL(roleID int64, query string, resume bool) string {
	v := url.Values{}
	if resume {
		v.Set("resume", "1")
	}
	if query != "" {
		v.Set("q", query)
	}
	u := "/admin/roles/" + strconv.FormatInt(roleID, 10) + "/permissions"
	if len(v) > 0 {
		u += "?" + v.Encode()
	}
	return u
}

func roleIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	return id, err == nil && id > 0
}

func (h *handler) listRoles(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}
	roles, err := h.perms.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, err, r.URL.Path)
		return
	}
	h.views.render(w, r, http.StatusOK, "roles", TemplateData{Title: "Roles", Data: roles})
}

// showEditor starts a fresh edit session from the backend, or resumes the
// stored draft when resume=1 is set and one exists.
func (h *handler) showEditor(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	roleID, ok := roleIDParam(r)
	if !ok {
		h.notFound(w, r)
		return
	}
	ctx := r.Context()
	key := permission.DraftKey(p, roleID)
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	var (
		editor *permission.Editor
		roles  []domain.Role
		err    error
	)
	if r.URL.Query().Get("resume") == "1" {
		editor, err = h.perms.Editor(ctx, key)
		switch {
		case err == nil:
			if roles, err = h.perms.ListRoles(ctx); err != nil {
				h.logger.WarnContext(ctx, "listing roles for editor failed", "error", err)
				roles = nil
			}
		case errors.Is(err, permission.ErrDraftNotFound):
			// start over from the backend below
		default:
			h.fail(w, r, err, editorURL(roleID, query, false))
			return
		}
	}
	if editor == nil {
		editor, roles, err = h.perms.Overview(ctx, key, roleID)
		if err != nil {
			h.fail(w, r, err, editorURL(roleID, query, false))
			return
		}
	}

	page := newEditorPage(editor, query, roles)
	page.Saving = h.perms.Saving(key)
	h.views.render(w, r, http.StatusOK, "editor", TemplateData{
		Title: "Permissions · " + editor.RoleName(),
		Data:  page,
	})
}

func (h *handler) togglePermission(w http.ResponseWriter, r *http.Request) {
	h.editDraft(w, r, func(key string) error {
		id, err := strconv.ParseInt(r.PostFormValue("permissionId"), 10, 64)
		if err != nil || id <= 0 {
			return errBadForm
		}
		_, err = h.perms.Toggle(r.Context(), key, domain.PermissionID(id))
		return err
	})
}

func (h *handler) toggleGroup(w http.ResponseWriter, r *http.Request) {
	h.editDraft(w, r, func(key string) error {
		group := r.PostFormValue("group")
		if group == "" {
			return errBadForm
		}
		_, err := h.perms.ToggleGroup(r.Context(), key, group, strings.TrimSpace(r.PostFormValue("q")))
		return err
	})
}

func (h *handler) savePermissions(w http.ResponseWriter, r *http.Request) {
	h.editDraft(w, r, func(key string) error {
		e, err := h.perms.Save(r.Context(), key)
		switch {
		case err == nil:
			setFlash(w, h.cookie.Secure, "success", "Permissions for "+e.RoleName()+" saved.")
			return nil
		case errors.Is(err, permission.ErrSaveInProgress):
			setFlash(w, h.cookie.Secure, "info", "A save for this role is already in progress.")
			return nil
		case errors.Is(err, domain.ErrBackendUnavailable):
			setFlash(w, h.cookie.Secure, "error", domain.UserMessage(err))
			return nil
		}
		return err
	})
}

func (h *handler) discardDraft(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	roleID, ok := roleIDParam(r)
	if !ok {
		h.notFound(w, r)
		return
	}
	if err := h.perms.Discard(r.Context(), permission.DraftKey(p, roleID)); err != nil {
		h.fail(w, r, err, editorURL(roleID, "", true))
		return
	}
	setFlash(w, h.cookie.Secure, "info", "Changes discarded.")
	http.Redirect(w, r, editorURL(roleID, "", false), http.StatusSeeOther)
}

var errBadForm = errors.New("malformed form")

// editDraft runs fn against the caller's draft for the role in the URL and
// redirects back to the resumed editor. An expired draft sends the user to
// a fresh load.
func (h *handler) editDraft(w http.ResponseWriter, r *http.Request, fn func(key string) error) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	roleID, ok := roleIDParam(r)
	if !ok {
		h.notFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.views.renderError(w, r, http.StatusBadRequest, "The form could not be read.", editorURL(roleID, "", true))
		return
	}
	query := strings.TrimSpace(r.PostFormValue("q"))

	err := fn(permission.DraftKey(p, roleID))
	switch {
	case err == nil:
		http.Redirect(w, r, editorURL(roleID, query, true), http.StatusSeeOther)
	case errors.Is(err, errBadForm):
		h.views.renderError(w, r, http.StatusBadRequest, "The form could not be read.", editorURL(roleID, query, true))
	case errors.Is(err, permission.ErrDraftNotFound):
		setFlash(w, h.cookie.Secure, "info", "Your edit session expired. Permissions were reloaded.")
		http.Redirect(w, r, editorURL(roleID, query, false), http.StatusSeeOther)
	default:
		h.fail(w, r, err, editorURL(roleID, query, true))
	}
}

type permissionForm struct {
	Name        string `form:"name" validate:"required,max=100"`
	Description string `form:"description" validate:"max=255"`
	ModuleID    string `form:"moduleId" validate:"required,numeric"`
}

type newPermissionPage struct {
	Form   permissionForm
	Errors map[string]string
}

func (h *handler) showNewPermission(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}
	h.renderNewPermission(w, r, http.StatusOK, newPermissionPage{})
}

func (h *handler) createPermission(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderNewPermission(w, r, http.StatusBadRequest, newPermissionPage{
			Errors: map[string]string{"general": "The form could not be read."},
		})
		return
	}
	form := permissionForm{
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
		ModuleID:    strings.TrimSpace(r.PostFormValue("moduleId")),
	}
	page := newPermissionPage{Form: form}

	if err := validate.Struct(h.validate, form); err != nil {
		page.Errors = fieldErrors(err)
		h.renderNewPermission(w, r, http.StatusBadRequest, page)
		return
	}
	moduleID, err := strconv.ParseInt(form.ModuleID, 10, 64)
	if err != nil {
		page.Errors = map[string]string{"moduleId": "must be a number"}
		h.renderNewPermission(w, r, http.StatusBadRequest, page)
		return
	}

	err = h.perms.CreatePermission(r.Context(), domain.NewPermission{
		Name:        form.Name,
		Description: form.Description,
		ModuleID:    moduleID,
	})
	switch {
	case errors.Is(err, domain.ErrValidation):
		page.Errors = fieldErrors(err)
		h.renderNewPermission(w, r, http.StatusBadRequest, page)
		return
	case errors.Is(err, domain.ErrBackendUnavailable):
		page.Errors = map[string]string{"general": domain.UserMessage(err)}
		h.renderNewPermission(w, r, http.StatusBadGateway, page)
		return
	case err != nil:
		h.fail(w, r, err, r.URL.Path)
		return
	}
	setFlash(w, h.cookie.Secure, "success", "Permission "+form.Name+" created.")
	http.Redirect(w, r, "/admin/roles", http.StatusSeeOther)
}

func (h *handler) renderNewPermission(w http.ResponseWriter, r *http.Request, status int, page newPermissionPage) {
	h.views.render(w, r, status, "permission_new", TemplateData{Title: "New permission", Data: page})
}

func fieldErrors(err error) map[string]string {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return map[string]string{"general": "Please check the form and try again."}
}

// fail renders the error card for a failed page load. Backend messages are
// shown verbatim; anything else is logged and replaced by a generic message.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error, retry string) {
	switch {
	case errors.Is(err, permission.ErrStaleResponse):
		h.views.renderError(w, r, http.StatusConflict, "This page was replaced by a newer request for the same role.", retry)
	case errors.Is(err, domain.ErrBackendUnavailable):
		h.logger.WarnContext(r.Context(), "backend request failed", "error", err)
		h.views.renderError(w, r, http.StatusBadGateway, domain.UserMessage(err), retry)
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "error", err)
		h.views.renderError(w, r, http.StatusInternalServerError, domain.GenericBackendMessage, retry)
	}
}
