package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tablecode/tablecode/internal/menu"
	"github.com/tablecode/tablecode/internal/metrics"
)

type MenuHandler struct {
	menus *menu.Service
}

func NewMenuHandler(menus *menu.Service) *MenuHandler {
	return &MenuHandler{menus: menus}
}

// Get serves the public menu for a code. No auth; the code is the URL.
func (h *MenuHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.menus.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.MenuViews.Inc()
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, m)
}
