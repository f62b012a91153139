// Package audit persists the append-only trail every mutating tenant
// operation emits. Entries are never updated or deleted, with one exception:
// owner-actor references in a soft-deleted tenant's history are reassigned
// to an anonymous placeholder during PII anonymization.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tablecode/tablecode/internal/models"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Entry is the write model. Old/New are marshalled to JSON; nil values are
// stored as NULL.
type Entry struct {
	HotelID    uuid.UUID
	ActorType  string
	Action     string
	EntityType string
	EntityID   uuid.UUID
	Old        interface{}
	New        interface{}
}

const insertSQL = `INSERT INTO audit_logs (hotel_id, actor_type, action, entity_type, entity_id, old_value, new_value)
	 VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (s *Store) Append(ctx context.Context, entry Entry) error {
	oldVal, newVal, err := marshalValues(entry)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, insertSQL,
		entry.HotelID, entry.ActorType, entry.Action, entry.EntityType, entry.EntityID, oldVal, newVal)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// AppendTx writes an entry inside the caller's transaction so a tenant row
// and its audit record never diverge on partial failure.
func (s *Store) AppendTx(ctx context.Context, tx pgx.Tx, entry Entry) error {
	oldVal, newVal, err := marshalValues(entry)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, insertSQL,
		entry.HotelID, entry.ActorType, entry.Action, entry.EntityType, entry.EntityID, oldVal, newVal)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ReassignActorTx replaces fromActor with toActor on all of a tenant's
// entries, within the caller's transaction.
func (s *Store) ReassignActorTx(ctx context.Context, tx pgx.Tx, hotelID uuid.UUID, fromActor, toActor string) error {
	_, err := tx.Exec(ctx,
		"UPDATE audit_logs SET actor_type = $1 WHERE hotel_id = $2 AND actor_type = $3",
		toActor, hotelID, fromActor)
	if err != nil {
		return fmt.Errorf("reassign audit actor: %w", err)
	}
	return nil
}

func (s *Store) ListRecent(ctx context.Context, hotelID uuid.UUID, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, hotel_id, actor_type, action, entity_type, entity_id, old_value, new_value, created_at
		 FROM audit_logs WHERE hotel_id = $1 ORDER BY created_at DESC LIMIT $2`,
		hotelID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.HotelID, &l.ActorType, &l.Action, &l.EntityType, &l.EntityID, &l.OldValue, &l.NewValue, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func marshalValues(entry Entry) (json.RawMessage, json.RawMessage, error) {
	var oldVal, newVal json.RawMessage
	if entry.Old != nil {
		b, err := json.Marshal(entry.Old)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal audit old value: %w", err)
		}
		oldVal = b
	}
	if entry.New != nil {
		b, err := json.Marshal(entry.New)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal audit new value: %w", err)
		}
		newVal = b
	}
	return oldVal, newVal, nil
}
