package handlers

import (
	"io"
	"net/http"

	"github.com/tablecode/tablecode/internal/apperr"
	"github.com/tablecode/tablecode/internal/api/middleware"
	"github.com/tablecode/tablecode/internal/audit"
	"github.com/tablecode/tablecode/internal/hotel"
	"github.com/tablecode/tablecode/internal/menu"
	"github.com/tablecode/tablecode/internal/models"
	"github.com/tablecode/tablecode/internal/storage"
)

const maxImageBytes = 2 << 20

type OwnerHandler struct {
	hotels  *hotel.Store
	menus   *menu.Service
	objects storage.Storage
	bucket  string
}

func NewOwnerHandler(hotels *hotel.Store, menus *menu.Service, objects storage.Storage, bucket string) *OwnerHandler {
	return &OwnerHandler{hotels: hotels, menus: menus, objects: objects, bucket: bucket}
}

// Me returns the authenticated owner's tenant record together with the
// full menu, unavailable items included, for the dashboard.
func (h *OwnerHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.OwnerSession(r.Context())
	if !ok {
		writeError(w, apperr.Unauthorized())
		return
	}

	hot, err := h.hotels.FindByID(r.Context(), sess.HotelID)
	if err != nil {
		writeError(w, err)
		return
	}

	categories, err := h.menus.FullMenu(r.Context(), hot.ID)
	if err != nil {
		writeError(w, apperr.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, struct {
		*models.Hotel
		Categories []models.Category `json:"categories"`
	}{hot, categories})
}

type themeRequest struct {
	Theme string `json:"theme"`
}

func (h *OwnerHandler) UpdateTheme(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.OwnerSession(r.Context())
	if !ok {
		writeError(w, apperr.Unauthorized())
		return
	}

	var req themeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !models.ValidTheme(req.Theme) {
		writeError(w, apperr.Validation("theme", "unknown theme"))
		return
	}

	hot, err := h.hotels.FindByID(r.Context(), sess.HotelID)
	if err != nil {
		writeError(w, err)
		return
	}

	old := hot.Theme
	hot.Theme = req.Theme
	entry := audit.Entry{
		HotelID:    hot.ID,
		ActorType:  models.ActorOwner,
		Action:     "theme_changed",
		EntityType: "hotel",
		EntityID:   hot.ID,
		Old:        map[string]string{"theme": old},
		New:        map[string]string{"theme": req.Theme},
	}
	if err := h.hotels.UpdateTheme(r.Context(), hot, entry); err != nil {
		writeError(w, err)
		return
	}

	h.menus.Invalidate(r.Context(), hot.Code)
	writeJSON(w, http.StatusOK, hot)
}

// UploadImage accepts a raw image body, checks its magic bytes and stores
// it under the tenant's prefix. The returned URL is what the menu editor
// records on an item.
func (h *OwnerHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.OwnerSession(r.Context())
	if !ok {
		writeError(w, apperr.Unauthorized())
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageBytes))
	if err != nil {
		writeError(w, apperr.Validation("image", "body unreadable or over 2 MB"))
		return
	}

	url, err := storage.StoreImage(r.Context(), h.objects, h.bucket, sess.HotelID, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"image_url": url})
}
