package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the tenant lifecycle state. DELETED is terminal: once PII has
// been anonymized there is no way back to a live status.
type Status string

const (
	StatusTrial     Status = "TRIAL"
	StatusActive    Status = "ACTIVE"
	StatusGrace     Status = "GRACE"
	StatusExpired   Status = "EXPIRED"
	StatusSuspended Status = "SUSPENDED"
	StatusDeleted   Status = "DELETED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusGrace, StatusExpired, StatusSuspended, StatusDeleted:
		return true
	}
	return false
}

// Live reports whether the tenant is visible to the public menu and may
// authenticate. SUSPENDED and DELETED tenants are not live.
func (s Status) Live() bool {
	return s.Valid() && s != StatusSuspended && s != StatusDeleted
}

type Plan string

const (
	PlanStarter  Plan = "STARTER"
	PlanStandard Plan = "STANDARD"
	PlanPro      Plan = "PRO"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanStarter, PlanStandard, PlanPro:
		return true
	}
	return false
}

// PinHashInvalidated is stored in place of a bcrypt hash when a tenant is
// soft-deleted. It can never match a verify call.
const PinHashInvalidated = "INVALIDATED"

// DefaultTheme is applied when a tenant is provisioned without one.
const DefaultTheme = "classic"

// ValidTheme reports whether s is one of the selectable menu themes.
func ValidTheme(s string) bool {
	switch s {
	case "classic", "warm", "nature", "elegant":
		return true
	}
	return false
}

type Hotel struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	Code            string     `json:"code" db:"code"`
	Name            string     `json:"name" db:"name"`
	City            string     `json:"city" db:"city"`
	Phone           string     `json:"phone" db:"phone"`
	Email           *string    `json:"email,omitempty" db:"email"`
	Plan            Plan       `json:"plan" db:"plan"`
	Status          Status     `json:"status" db:"status"`
	Theme           string     `json:"theme" db:"theme"`
	PinHash         string     `json:"-" db:"pin_hash"`
	PinChangedAt    *time.Time `json:"pin_changed_at,omitempty" db:"pin_changed_at"`
	PinResetCount   int        `json:"pin_reset_count" db:"pin_reset_count"`
	LastPinResetAt  *time.Time `json:"last_pin_reset_at,omitempty" db:"last_pin_reset_at"`
	LastPinResetBy  *string    `json:"last_pin_reset_by,omitempty" db:"last_pin_reset_by"`
	TrialEnds       *time.Time `json:"trial_ends,omitempty" db:"trial_ends"`
	PaidUntil       *time.Time `json:"paid_until,omitempty" db:"paid_until"`
	LastPaymentNote *string    `json:"last_payment_note,omitempty" db:"last_payment_note"`
	Views           int64      `json:"views" db:"views"`
	LastViewAt      *time.Time `json:"last_view_at,omitempty" db:"last_view_at"`
	ConsentedAt     *time.Time `json:"consented_at,omitempty" db:"consented_at"`
	ConsentVersion  *string    `json:"consent_version,omitempty" db:"consent_version"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	DeletedBy       *string    `json:"deleted_by,omitempty" db:"deleted_by"`
	PurgeAfter      *time.Time `json:"purge_after,omitempty" db:"purge_after"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}
