package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tablecode/tablecode/internal/apperr"
	"github.com/tablecode/tablecode/internal/api/middleware"
	"github.com/tablecode/tablecode/internal/credential"
	"github.com/tablecode/tablecode/internal/forgotpin"
	"github.com/tablecode/tablecode/internal/hotel"
	"github.com/tablecode/tablecode/internal/metrics"
	"github.com/tablecode/tablecode/internal/models"
	"github.com/tablecode/tablecode/internal/ratelimit"
	"github.com/tablecode/tablecode/internal/session"
	"github.com/tablecode/tablecode/internal/slug"
)

type AuthHandler struct {
	hotels  *hotel.Store
	creds   *credential.Store
	issuer  *session.OwnerIssuer
	admin   *session.AdminSession
	limiter *ratelimit.Limiter
	flow    *forgotpin.Flow
	logger  *zap.Logger
	secure  bool
}

func NewAuthHandler(hotels *hotel.Store, creds *credential.Store, issuer *session.OwnerIssuer,
	admin *session.AdminSession, limiter *ratelimit.Limiter, flow *forgotpin.Flow,
	logger *zap.Logger, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		hotels:  hotels,
		creds:   creds,
		issuer:  issuer,
		admin:   admin,
		limiter: limiter,
		flow:    flow,
		logger:  logger,
		secure:  secureCookies,
	}
}

type ownerLoginRequest struct {
	Code string `json:"code"`
	Pin  string `json:"pin"`
}

// OwnerLogin exchanges code+PIN for a bearer token. The limiter is keyed
// by the submitted code so rotating source IPs buys an attacker nothing,
// and a successful login clears the counter.
func (h *AuthHandler) OwnerLogin(w http.ResponseWriter, r *http.Request) {
	var req ownerLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	code := slug.Normalize(req.Code)
	if err := slug.Validate(code); err != nil {
		writeError(w, err)
		return
	}

	limitKey := ratelimit.OwnerLogin.Key(code)
	res, err := h.limiter.Check(r.Context(), ratelimit.OwnerLogin, limitKey)
	if err != nil && !errors.Is(err, ratelimit.ErrRedisUnavailable) {
		writeError(w, apperr.Internal(err))
		return
	}
	if err == nil && !res.Allowed {
		metrics.RateLimitRejections.WithLabelValues(ratelimit.OwnerLogin.Name).Inc()
		writeError(w, apperr.RateLimited(res.RetryAfter))
		return
	}

	hot, err := h.hotels.FindByCode(r.Context(), code)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			h.failLogin(w, "owner")
			return
		}
		writeError(w, apperr.Internal(err))
		return
	}

	pin := credential.NormalizePin(req.Pin)
	if !h.creds.Verify(pin, hot.PinHash) {
		h.failLogin(w, "owner")
		return
	}

	switch hot.Status {
	case models.StatusSuspended:
		metrics.LoginAttempts.WithLabelValues("owner", "suspended").Inc()
		writeError(w, apperr.Forbidden("account suspended"))
		return
	case models.StatusDeleted:
		h.failLogin(w, "owner")
		return
	}

	token, err := h.issuer.Issue(hot)
	if err != nil {
		writeError(w, apperr.Internal(err))
		return
	}

	if err := h.limiter.Reset(r.Context(), limitKey); err != nil {
		h.logger.Warn("login counter reset failed", zap.Error(err))
	}

	metrics.LoginAttempts.WithLabelValues("owner", "success").Inc()
	h.logger.Info("owner login", zap.String("code", code))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"hotel": hot,
	})
}

func (h *AuthHandler) failLogin(w http.ResponseWriter, surface string) {
	metrics.LoginAttempts.WithLabelValues(surface, "failure").Inc()
	writeError(w, apperr.Unauthorized())
}

type forgotPinRequest struct {
	Code        string `json:"code"`
	Email       string `json:"email"`
	Fingerprint string `json:"fingerprint"`
}

// ForgotPinRequest answers identically whether or not the code and email
// match a tenant, so it cannot be used to enumerate either.
func (h *AuthHandler) ForgotPinRequest(w http.ResponseWriter, r *http.Request) {
	var req forgotPinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	code := slug.Normalize(req.Code)

	if !h.allowForgotPin(w, r, code) {
		return
	}

	if err := h.flow.Request(r.Context(), code, req.Email, req.Fingerprint); err != nil {
		metrics.PinResetFlow.WithLabelValues("request", "failure").Inc()
		writeError(w, err)
		return
	}

	metrics.PinResetFlow.WithLabelValues("request", "success").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "if the details match, a code has been sent"})
}

type forgotPinVerifyRequest struct {
	Code        string `json:"code"`
	OTP         string `json:"otp"`
	Fingerprint string `json:"fingerprint"`
}

func (h *AuthHandler) ForgotPinVerify(w http.ResponseWriter, r *http.Request) {
	var req forgotPinVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	code := slug.Normalize(req.Code)

	if !h.allowForgotPin(w, r, code) {
		return
	}

	token, err := h.flow.Verify(r.Context(), code, req.OTP, req.Fingerprint)
	if err != nil {
		metrics.PinResetFlow.WithLabelValues("verify", "failure").Inc()
		writeError(w, err)
		return
	}

	metrics.PinResetFlow.WithLabelValues("verify", "success").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"reset_token": token})
}

type forgotPinResetRequest struct {
	Code        string `json:"code"`
	ResetToken  string `json:"reset_token"`
	NewPin      string `json:"new_pin"`
	Fingerprint string `json:"fingerprint"`
}

func (h *AuthHandler) ForgotPinReset(w http.ResponseWriter, r *http.Request) {
	var req forgotPinResetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	code := slug.Normalize(req.Code)

	if !h.allowForgotPin(w, r, code) {
		return
	}

	if err := h.flow.Reset(r.Context(), code, req.ResetToken, req.NewPin, req.Fingerprint); err != nil {
		metrics.PinResetFlow.WithLabelValues("reset", "failure").Inc()
		writeError(w, err)
		return
	}

	metrics.PinResetFlow.WithLabelValues("reset", "success").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin updated"})
}

// allowForgotPin applies the (IP, code) recovery budget shared by all
// three steps of the flow.
func (h *AuthHandler) allowForgotPin(w http.ResponseWriter, r *http.Request, code string) bool {
	key := ratelimit.ForgotPin.Key(middleware.ClientIP(r), code)
	res, err := h.limiter.Check(r.Context(), ratelimit.ForgotPin, key)
	if err != nil {
		if errors.Is(err, ratelimit.ErrRedisUnavailable) {
			// The flow state itself lives in redis; without it nothing can
			// proceed anyway.
			writeError(w, apperr.Internal(err))
			return false
		}
		writeError(w, apperr.Internal(err))
		return false
	}
	if !res.Allowed {
		metrics.RateLimitRejections.WithLabelValues(ratelimit.ForgotPin.Name).Inc()
		writeError(w, apperr.RateLimited(res.RetryAfter))
		return false
	}
	return true
}

type adminLoginRequest struct {
	Key string `json:"key"`
}

// AdminLogin verifies the shared key and sets the HMAC session cookie.
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cookieValue, err := h.admin.Login(req.Key)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("admin", "failure").Inc()
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.AdminCookieName,
		Value:    cookieValue,
		Path:     "/",
		MaxAge:   int(session.AdminSessionTTL / time.Second),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})

	metrics.LoginAttempts.WithLabelValues("admin", "success").Inc()
	h.logger.Info("admin login", zap.String("ip", middleware.ClientIP(r)))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.AdminCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AdminMe confirms the session cookie is still valid; the frontend calls
// it on load to decide whether to show the login form.
func (h *AuthHandler) AdminMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"role": "superadmin"})
}
