package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actor types recorded on audit entries. ActorDeletedUser replaces
// ActorOwner in a soft-deleted tenant's history during PII anonymization.
const (
	ActorOwner       = "owner"
	ActorAdmin       = "admin"
	ActorSystem      = "system"
	ActorDeletedUser = "deleted_user"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	HotelID    uuid.UUID       `json:"hotel_id" db:"hotel_id"`
	ActorType  string          `json:"actor_type" db:"actor_type"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	OldValue   json.RawMessage `json:"old_value,omitempty" db:"old_value"`
	NewValue   json.RawMessage `json:"new_value,omitempty" db:"new_value"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
