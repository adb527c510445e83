package web

import (
	"net/http"

	"portal/internal/portal"
)

func (h *handler) dashboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}
	s, _ := portal.SessionFromContext(r.Context())
	h.views.render(w, r, http.StatusOK, "dashboard", TemplateData{Title: "Dashboard", Data: s})
}

func (h *handler) profile(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}
	s, _ := portal.SessionFromContext(r.Context())
	h.views.render(w, r, http.StatusOK, "profile", TemplateData{Title: "Profile", Data: s})
}
