// Package lifecycle orchestrates tenant provisioning, status transitions,
// credential rotation, GDPR soft-delete and the hard purge.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tablecode/tablecode/internal/apperr"
	"github.com/tablecode/tablecode/internal/audit"
	"github.com/tablecode/tablecode/internal/credential"
	"github.com/tablecode/tablecode/internal/models"
	"github.com/tablecode/tablecode/internal/slug"
)

const (
	trialDays     = 30
	retentionDays = 180

	// Conflict retries when a generated code loses the insert race.
	createAttempts = 3
)

// Repository is the persistence surface the service needs. *hotel.Store
// satisfies it.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Hotel, error)
	Create(ctx context.Context, h *models.Hotel) error
	UpdateDetails(ctx context.Context, h *models.Hotel, entry audit.Entry) error
	SetStatus(ctx context.Context, h *models.Hotel, entry audit.Entry) error
	UpdatePin(ctx context.Context, h *models.Hotel, entry audit.Entry) error
	SoftDelete(ctx context.Context, h *models.Hotel, entry audit.Entry) error
	CollectImageRefs(ctx context.Context, id uuid.UUID) ([]string, error)
	Purge(ctx context.Context, id uuid.UUID) error
	ListPurgeDue(ctx context.Context, before time.Time) ([]uuid.UUID, error)
}

// ObjectDeleter removes externally stored assets. Deletions during a purge
// are best-effort: a failed delete is logged and counted, never fatal.
type ObjectDeleter interface {
	DeleteByURL(ctx context.Context, ref string) error
}

type Service struct {
	repo    Repository
	slugs   *slug.Generator
	creds   *credential.Store
	objects ObjectDeleter
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(repo Repository, slugs *slug.Generator, creds *credential.Store, objects ObjectDeleter, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		slugs:   slugs,
		creds:   creds,
		objects: objects,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateInput struct {
	Name           string
	City           string
	Phone          string
	Email          *string
	Plan           models.Plan
	Theme          string
	ConsentVersion string
}

// Created is the one response that ever carries a plaintext PIN. It is
// shown to the admin once at provisioning time and never stored.
type Created struct {
	Hotel *models.Hotel
	Pin   string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Created, error) {
	if in.Name == "" {
		return nil, apperr.Validation("name", "must not be empty")
	}
	if in.Plan == "" {
		in.Plan = models.PlanStarter
	}
	if !in.Plan.Valid() {
		return nil, apperr.Validation("plan", "unknown plan")
	}
	if in.Theme == "" {
		in.Theme = models.DefaultTheme
	}
	if !models.ValidTheme(in.Theme) {
		return nil, apperr.Validation("theme", "unknown theme")
	}

	pin, err := credential.GeneratePin()
	if err != nil {
		return nil, fmt.Errorf("generate pin: %w", err)
	}
	pinHash, err := s.creds.Hash(pin)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}

	now := s.now()
	trialEnds := now.AddDate(0, 0, trialDays)
	consentVersion := in.ConsentVersion
	if consentVersion == "" {
		consentVersion = "v1"
	}

	var h *models.Hotel
	for attempt := 0; attempt < createAttempts; attempt++ {
		code, err := s.slugs.Generate(ctx)
		if err != nil {
			return nil, err
		}

		h = &models.Hotel{
			ID:             uuid.New(),
			Code:           code,
			Name:           in.Name,
			City:           in.City,
			Phone:          in.Phone,
			Email:          in.Email,
			Plan:           in.Plan,
			Status:         models.StatusTrial,
			Theme:          in.Theme,
			PinHash:        pinHash,
			TrialEnds:      &trialEnds,
			ConsentedAt:    &now,
			ConsentVersion: &consentVersion,
		}

		err = s.repo.Create(ctx, h)
		if err == nil {
			break
		}
		if apperr.KindOf(err) == apperr.KindConflict {
			s.logger.Warn("code lost insert race, regenerating", zap.Int("attempt", attempt+1))
			h = nil
			continue
		}
		return nil, err
	}
	if h == nil {
		return nil, apperr.Exhausted("could not allocate a unique code")
	}

	s.logger.Info("hotel created",
		zap.String("hotel_id", h.ID.String()),
		zap.String("code", h.Code),
		zap.String("plan", string(h.Plan)))
	return &Created{Hotel: h, Pin: pin}, nil
}

type UpdateInput struct {
	Name  *string
	City  *string
	Phone *string
	Email *string
	Plan  *models.Plan
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput, actor string) (*models.Hotel, error) {
	h, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	old := *h

	if in.Name != nil {
		if *in.Name == "" {
			return nil, apperr.Validation("name", "must not be empty")
		}
		h.Name = *in.Name
	}
	if in.City != nil {
		h.City = *in.City
	}
	if in.Phone != nil {
		h.Phone = *in.Phone
	}
	if in.Email != nil {
		h.Email = in.Email
	}
	if in.Plan != nil {
		if !in.Plan.Valid() {
			return nil, apperr.Validation("plan", "unknown plan")
		}
		h.Plan = *in.Plan
	}

	entry := audit.Entry{
		HotelID:    h.ID,
		ActorType:  actor,
		Action:     "hotel_updated",
		EntityType: "hotel",
		EntityID:   h.ID,
		Old:        map[string]interface{}{"name": old.Name, "city": old.City, "phone": old.Phone, "plan": old.Plan},
		New:        map[string]interface{}{"name": h.Name, "city": h.City, "phone": h.Phone, "plan": h.Plan},
	}
	if err := s.repo.UpdateDetails(ctx, h, entry); err != nil {
		return nil, err
	}
	return h, nil
}

type StatusInput struct {
	Status      models.Status
	PaidUntil   *time.Time
	PaymentNote *string
}

// SetStatus applies an admin-driven lifecycle transition. DELETED is
// terminal and is never reachable here; use SoftDelete.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, in StatusInput) (*models.Hotel, error) {
	if !in.Status.Valid() || in.Status == models.StatusDeleted {
		return nil, apperr.Validation("status", "unknown status")
	}

	h, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.Status == models.StatusDeleted {
		return nil, apperr.Conflict("hotel is deleted")
	}

	oldStatus := h.Status
	h.Status = in.Status
	if in.PaidUntil != nil {
		h.PaidUntil = in.PaidUntil
	}
	if in.PaymentNote != nil {
		h.LastPaymentNote = in.PaymentNote
	}

	entry := audit.Entry{
		HotelID:    h.ID,
		ActorType:  models.ActorAdmin,
		Action:     "status_changed",
		EntityType: "hotel",
		EntityID:   h.ID,
		Old:        map[string]interface{}{"status": oldStatus},
		New:        map[string]interface{}{"status": h.Status},
	}
	if err := s.repo.SetStatus(ctx, h, entry); err != nil {
		return nil, err
	}

	s.logger.Info("hotel status changed",
		zap.String("hotel_id", h.ID.String()),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(h.Status)))
	return h, nil
}

// ResetPin issues a fresh generated credential for a tenant. The returned
// plaintext is shown to the admin once; audit values record timestamps
// only.
func (s *Service) ResetPin(ctx context.Context, id uuid.UUID) (string, error) {
	h, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if h.Status == models.StatusDeleted {
		return "", apperr.Conflict("hotel is deleted")
	}

	pin, err := credential.GeneratePin()
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	if err := s.applyPin(ctx, h, pin, models.ActorAdmin, "pin_reset"); err != nil {
		return "", err
	}
	return pin, nil
}

// SetPin applies an owner-chosen credential, used by the forgot-PIN flow.
func (s *Service) SetPin(ctx context.Context, id uuid.UUID, pin string) error {
	pin = credential.NormalizePin(pin)
	if err := credential.ValidatePinFormat(pin); err != nil {
		return err
	}
	if err := credential.CheckPinStrength(pin); err != nil {
		return err
	}

	h, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if h.Status == models.StatusDeleted {
		return apperr.Conflict("hotel is deleted")
	}
	return s.applyPin(ctx, h, pin, models.ActorOwner, "pin_changed")
}

func (s *Service) applyPin(ctx context.Context, h *models.Hotel, pin, actor, action string) error {
	hash, err := s.creds.Hash(pin)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}

	now := s.now()
	oldChangedAt := h.PinChangedAt
	h.PinHash = hash
	h.PinChangedAt = &now
	h.LastPinResetAt = &now
	h.LastPinResetBy = &actor

	entry := audit.Entry{
		HotelID:    h.ID,
		ActorType:  actor,
		Action:     action,
		EntityType: "hotel",
		EntityID:   h.ID,
		Old:        map[string]interface{}{"pin_changed_at": oldChangedAt},
		New:        map[string]interface{}{"pin_changed_at": now},
	}
	if err := s.repo.UpdatePin(ctx, h, entry); err != nil {
		return err
	}

	s.logger.Info("hotel pin rotated",
		zap.String("hotel_id", h.ID.String()),
		zap.String("actor", actor))
	return nil
}

// SoftDelete anonymizes the tenant's PII and invalidates its credential.
// The record stays for the retention window so audit history survives,
// then the purge sweep removes it.
func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID, actor string) error {
	h, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if h.Status == models.StatusDeleted {
		return apperr.Conflict("hotel already deleted")
	}

	now := s.now()
	purgeAfter := now.AddDate(0, 0, retentionDays)

	// The deletion entry keeps the pre-anonymization values; audit rows are
	// exempt from the anonymization rule for compliance traceability.
	before := map[string]interface{}{
		"status": h.Status,
		"name":   h.Name,
		"phone":  h.Phone,
		"email":  h.Email,
	}

	h.Status = models.StatusDeleted
	h.Name = "Deleted Hotel"
	h.Phone = "0000000000"
	h.Email = nil
	h.PinHash = models.PinHashInvalidated
	h.DeletedAt = &now
	h.DeletedBy = &actor
	h.PurgeAfter = &purgeAfter

	entry := audit.Entry{
		HotelID:    h.ID,
		ActorType:  actor,
		Action:     "hotel_deleted",
		EntityType: "hotel",
		EntityID:   h.ID,
		Old:        before,
		New:        map[string]interface{}{"status": models.StatusDeleted, "purge_after": purgeAfter},
	}
	if err := s.repo.SoftDelete(ctx, h, entry); err != nil {
		return err
	}

	s.logger.Info("hotel soft-deleted",
		zap.String("hotel_id", h.ID.String()),
		zap.String("actor", actor),
		zap.Time("purge_after", purgeAfter))
	return nil
}

// HardPurge erases a soft-deleted tenant entirely. Stored assets are
// removed best-effort before the database rows; a second purge of the
// same tenant returns NotFound.
func (s *Service) HardPurge(ctx context.Context, id uuid.UUID) error {
	h, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if h.Status != models.StatusDeleted {
		return apperr.Conflict("hotel must be soft-deleted first")
	}

	refs, err := s.repo.CollectImageRefs(ctx, id)
	if err != nil {
		return err
	}
	var failed int
	for _, ref := range refs {
		if err := s.objects.DeleteByURL(ctx, ref); err != nil {
			failed++
			s.logger.Warn("asset delete failed during purge",
				zap.String("hotel_id", id.String()), zap.Error(err))
		}
	}

	if err := s.repo.Purge(ctx, id); err != nil {
		return err
	}

	s.logger.Info("hotel purged",
		zap.String("hotel_id", id.String()),
		zap.Int("assets", len(refs)),
		zap.Int("asset_failures", failed))
	return nil
}

// PurgeDue runs the retention sweep: every soft-deleted tenant past its
// purge_after date is hard-purged. Failures are logged and the sweep
// continues.
func (s *Service) PurgeDue(ctx context.Context) (int, error) {
	ids, err := s.repo.ListPurgeDue(ctx, s.now())
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, id := range ids {
		if err := s.HardPurge(ctx, id); err != nil {
			s.logger.Error("scheduled purge failed",
				zap.String("hotel_id", id.String()), zap.Error(err))
			continue
		}
		purged++
	}
	return purged, nil
}
