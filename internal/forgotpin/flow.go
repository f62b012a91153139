package forgotpin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tablecode/tablecode/internal/apperr"
	"github.com/tablecode/tablecode/internal/models"
	"github.com/tablecode/tablecode/internal/slug"
)

const otpDigits = 6

// TenantFinder resolves a menu code to its tenant.
type TenantFinder interface {
	FindByCode(ctx context.Context, code string) (*models.Hotel, error)
}

// PinResetter applies the owner's new credential once the reset token has
// been redeemed. The lifecycle service satisfies it.
type PinResetter interface {
	SetPin(ctx context.Context, id uuid.UUID, pin string) error
}

// OTPSender delivers the one-time code to the owner's email, typically by
// enqueueing a background job.
type OTPSender interface {
	SendOTP(ctx context.Context, email, code, otp string) error
}

type Flow struct {
	store    *recordStore
	tenants  TenantFinder
	resetter PinResetter
	sender   OTPSender
	logger   *zap.Logger
	now      func() time.Time
}

func NewFlow(rdb redis.UniversalClient, tenants TenantFinder, resetter PinResetter, sender OTPSender, logger *zap.Logger) *Flow {
	return &Flow{
		store:    &recordStore{rdb: rdb},
		tenants:  tenants,
		resetter: resetter,
		sender:   sender,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (f *Flow) WithClock(now func() time.Time) *Flow {
	f.now = now
	return f
}

// Request starts a recovery. The caller supplies the email they believe is
// on file; unknown codes, dead tenants and mismatched addresses all return
// the same nil as a real dispatch, so the endpoint cannot be used to probe
// which codes exist or which email belongs to whom. A repeat request
// replaces the prior record, so only the latest OTP is ever redeemable.
func (f *Flow) Request(ctx context.Context, code, email, fingerprint string) error {
	code = slug.Normalize(code)
	if err := slug.Validate(code); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.Validation("email", "must not be empty")
	}

	h, err := f.tenants.FindByCode(ctx, code)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil
		}
		return err
	}
	if !h.Status.Live() || h.Email == nil || !strings.EqualFold(*h.Email, email) {
		return nil
	}

	otp, err := randomOTP()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	rec := &record{
		OTPHash:           digest(otp),
		ExpiresAt:         f.now().Add(recordTTL),
		AttemptsRemaining: maxAttempts,
		Fingerprint:       fingerprint,
	}
	if err := f.store.put(ctx, code, rec, recordTTL); err != nil {
		return err
	}

	if err := f.sender.SendOTP(ctx, *h.Email, code, otp); err != nil {
		return fmt.Errorf("send otp: %w", err)
	}

	f.logger.Info("pin reset requested", zap.String("code", code))
	return nil
}

// Verify exchanges a correct OTP for a single-use reset token. The request
// must come from the fingerprint that started the flow. Three wrong
// guesses burn the record; an expired or missing record reads the same as
// an exhausted one.
func (f *Flow) Verify(ctx context.Context, code, otp, fingerprint string) (string, error) {
	code = slug.Normalize(code)
	if err := slug.Validate(code); err != nil {
		return "", err
	}

	token, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	remaining, err := f.store.consumeAttempt(ctx, code, f.now(), digest(otp), fingerprint, digest(token))
	switch {
	case err == nil:
		f.logger.Info("pin reset otp verified", zap.String("code", code))
		return token, nil
	case errors.Is(err, errNoRecord):
		return "", apperr.NotFound("no pending reset request")
	case errors.Is(err, errFingerprintMismatch):
		return "", apperr.Unauthorized()
	case errors.Is(err, errAttemptsExhausted):
		f.logger.Warn("pin reset attempts exhausted", zap.String("code", code))
		return "", apperr.Exhausted("too many incorrect codes, request a new one")
	case errors.Is(err, errOTPMismatch):
		return "", &apperr.Error{
			Kind:    apperr.KindUnauthorized,
			Message: fmt.Sprintf("incorrect code, %d attempts remaining", remaining),
		}
	default:
		return "", err
	}
}

// Reset redeems a verified token for a new owner-chosen PIN and burns the
// record. Any mismatch in token, fingerprint or state reads as invalid
// credentials.
func (f *Flow) Reset(ctx context.Context, code, token, newPin, fingerprint string) error {
	code = slug.Normalize(code)
	if err := slug.Validate(code); err != nil {
		return err
	}

	rec, err := f.store.get(ctx, code)
	if err != nil {
		return err
	}
	if rec == nil || !rec.Verified || f.now().After(rec.ExpiresAt) {
		return apperr.Unauthorized()
	}
	if rec.Fingerprint != fingerprint {
		return apperr.Unauthorized()
	}
	if subtle.ConstantTimeCompare([]byte(digest(token)), []byte(rec.ResetTokenHash)) != 1 {
		return apperr.Unauthorized()
	}

	h, err := f.tenants.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := f.resetter.SetPin(ctx, h.ID, newPin); err != nil {
		return err
	}

	if err := f.store.delete(ctx, code); err != nil {
		return err
	}
	f.logger.Info("pin reset completed", zap.String("code", code))
	return nil
}

func randomOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
