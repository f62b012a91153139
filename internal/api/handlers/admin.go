package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tablecode/tablecode/internal/apperr"
	"github.com/tablecode/tablecode/internal/api/middleware"
	"github.com/tablecode/tablecode/internal/audit"
	"github.com/tablecode/tablecode/internal/hotel"
	"github.com/tablecode/tablecode/internal/lifecycle"
	"github.com/tablecode/tablecode/internal/menu"
	"github.com/tablecode/tablecode/internal/metrics"
	"github.com/tablecode/tablecode/internal/models"
	"github.com/tablecode/tablecode/internal/ratelimit"
)

type AdminHandler struct {
	hotels    *hotel.Store
	lifecycle *lifecycle.Service
	audits    *audit.Store
	menus     *menu.Service
	limiter   *ratelimit.Limiter
}

func NewAdminHandler(hotels *hotel.Store, svc *lifecycle.Service, audits *audit.Store,
	menus *menu.Service, limiter *ratelimit.Limiter) *AdminHandler {
	return &AdminHandler{hotels: hotels, lifecycle: svc, audits: audits, menus: menus, limiter: limiter}
}

func hotelID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("id", "must be a UUID")
	}
	return id, nil
}

func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	q := hotel.ListQuery{
		Search: r.URL.Query().Get("search"),
	}
	q.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.Status(raw)
		if !status.Valid() {
			writeError(w, apperr.Validation("status", "unknown status"))
			return
		}
		q.Status = &status
	}

	hotels, total, err := h.hotels.List(r.Context(), q)
	if err != nil {
		writeError(w, apperr.Internal(err))
		return
	}
	if hotels == nil {
		hotels = []models.Hotel{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hotels": hotels,
		"total":  total,
	})
}

type createHotelRequest struct {
	Name           string      `json:"name"`
	City           string      `json:"city"`
	Phone          string      `json:"phone"`
	Email          *string     `json:"email"`
	Plan           models.Plan `json:"plan"`
	Theme          string      `json:"theme"`
	ConsentVersion string      `json:"consent_version"`
}

// Create provisions a tenant. The response carries the generated PIN; it
// is the only time the plaintext ever crosses the wire.
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createHotelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.lifecycle.Create(r.Context(), lifecycle.CreateInput{
		Name:           req.Name,
		City:           req.City,
		Phone:          req.Phone,
		Email:          req.Email,
		Plan:           req.Plan,
		Theme:          req.Theme,
		ConsentVersion: req.ConsentVersion,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"hotel": created.Hotel,
		"pin":   created.Pin,
	})
}

func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := hotelID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	hot, err := h.hotels.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hot)
}

type updateHotelRequest struct {
	Name  *string      `json:"name"`
	City  *string      `json:"city"`
	Phone *string      `json:"phone"`
	Email *string      `json:"email"`
	Plan  *models.Plan `json:"plan"`
}

func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := hotelID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateHotelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	hot, err := h.lifecycle.Update(r.Context(), id, lifecycle.UpdateInput{
		Name:  req.Name,
		City:  req.City,
		Phone: req.Phone,
		Email: req.Email,
		Plan:  req.Plan,
	}, models.ActorAdmin)
	if err != nil {
		writeError(w, err)
		return
	}

	h.menus.Invalidate(r.Context(), hot.Code)
	writeJSON(w, http.StatusOK, hot)
}

type statusRequest struct {
	Status      models.Status `json:"status"`
	PaidUntil   *time.Time    `json:"paid_until"`
	PaymentNote *string       `json:"payment_note"`
}

func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := hotelID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	hot, err := h.lifecycle.SetStatus(r.Context(), id, lifecycle.StatusInput{
		Status:      req.Status,
		PaidUntil:   req.PaidUntil,
		PaymentNote: req.PaymentNote,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.menus.Invalidate(r.Context(), hot.Code)
	writeJSON(w, http.StatusOK, hot)
}

// ResetPin issues a fresh PIN for a tenant, budgeted per (IP, tenant) so a
// stolen admin session cannot rapidly churn credentials across the fleet.
func (h *AdminHandler) ResetPin(w http.ResponseWriter, r *http.Request) {
	id, err := hotelID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	key := ratelimit.AdminPinReset.Key(middleware.ClientIP(r), id.String())
	res, err := h.limiter.Check(r.Context(), ratelimit.AdminPinReset, key)
	if err != nil && !errors.Is(err, ratelimit.ErrRedisUnavailable) {
		writeError(w, apperr.Internal(err))
		return
	}
	if err == nil && !res.Allowed {
		metrics.RateLimitRejections.WithLabelValues(ratelimit.AdminPinReset.Name).Inc()
		writeError(w, apperr.RateLimited(res.RetryAfter))
		return
	}

	pin, err := h.lifecycle.ResetPin(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pin": pin})
}

// PinResetCount reports how often a tenant's PIN has been reset and by
// whom, for the abuse review console.
func (h *AdminHandler) PinResetCount(w http.ResponseWriter, r *http.Request) {
	id, err := hotelID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	hot, err := h.hotels.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pin_reset_count":   hot.PinResetCount,
		"last_pin_reset_at": hot.LastPinResetAt,
		"last_pin_reset_by": hot.LastPinResetBy,
	})
}

func (h *AdminHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	id, err := hotelID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	hot, err := h.hotels.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.lifecycle.SoftDelete(r.Context(), id, models.ActorAdmin); err != nil {
		writeError(w, err)
		return
	}

	h.menus.Invalidate(r.Context(), hot.Code)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *AdminHandler) Purge(w http.ResponseWriter, r *http.Request) {
	id, err := hotelID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.lifecycle.HardPurge(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	metrics.TenantsPurged.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	id, err := hotelID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.audits.ListRecent(r.Context(), id, limit)
	if err != nil {
		writeError(w, apperr.Internal(err))
		return
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
