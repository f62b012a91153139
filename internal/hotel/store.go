// Package hotel implements the tenant store over Postgres. The unique
// constraint on hotels.code is the final arbiter for slug collisions;
// mutations that must stay in step with the audit trail run in a single
// transaction.
package hotel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tablecode/tablecode/internal/apperr"
	"github.com/tablecode/tablecode/internal/audit"
	"github.com/tablecode/tablecode/internal/models"
)

const uniqueViolation = "23505"

const hotelColumns = `id, code, name, city, phone, email, plan, status, theme, pin_hash,
	pin_changed_at, pin_reset_count, last_pin_reset_at, last_pin_reset_by,
	trial_ends, paid_until, last_payment_note, views, last_view_at,
	consented_at, consent_version, deleted_at, deleted_by, purge_after,
	created_at, updated_at`

type Store struct {
	db     *pgxpool.Pool
	audits *audit.Store
}

func NewStore(db *pgxpool.Pool, audits *audit.Store) *Store {
	return &Store{db: db, audits: audits}
}

func scanHotel(row pgx.Row) (*models.Hotel, error) {
	var h models.Hotel
	err := row.Scan(&h.ID, &h.Code, &h.Name, &h.City, &h.Phone, &h.Email, &h.Plan, &h.Status, &h.Theme, &h.PinHash,
		&h.PinChangedAt, &h.PinResetCount, &h.LastPinResetAt, &h.LastPinResetBy,
		&h.TrialEnds, &h.PaidUntil, &h.LastPaymentNote, &h.Views, &h.LastViewAt,
		&h.ConsentedAt, &h.ConsentVersion, &h.DeletedAt, &h.DeletedBy, &h.PurgeAfter,
		&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("hotel not found")
		}
		return nil, fmt.Errorf("scan hotel: %w", err)
	}
	return &h, nil
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*models.Hotel, error) {
	row := s.db.QueryRow(ctx, "SELECT "+hotelColumns+" FROM hotels WHERE id = $1", id)
	return scanHotel(row)
}

func (s *Store) FindByCode(ctx context.Context, code string) (*models.Hotel, error) {
	row := s.db.QueryRow(ctx, "SELECT "+hotelColumns+" FROM hotels WHERE code = $1", code)
	return scanHotel(row)
}

func (s *Store) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM hotels WHERE code = $1)", code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check code exists: %w", err)
	}
	return exists, nil
}

// Create inserts a new tenant. A concurrent insert of the same code loses
// the race at the unique index and surfaces as Conflict so the caller can
// retry generation.
func (s *Store) Create(ctx context.Context, h *models.Hotel) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO hotels (id, code, name, city, phone, email, plan, status, theme, pin_hash,
			trial_ends, consented_at, consent_version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at, updated_at`,
		h.ID, h.Code, h.Name, h.City, h.Phone, h.Email, h.Plan, h.Status, h.Theme, h.PinHash,
		h.TrialEnds, h.ConsentedAt, h.ConsentVersion,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.Conflict("code already exists")
		}
		return fmt.Errorf("insert hotel: %w", err)
	}
	return nil
}

type ListQuery struct {
	Status *models.Status
	Search string
	Page   int
	Limit  int
}

func (s *Store) List(ctx context.Context, q ListQuery) ([]models.Hotel, int, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 100 {
		q.Limit = 100
	}

	where := " WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if q.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *q.Status)
		argIdx++
	}
	if q.Search != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%d OR code ILIKE $%d OR city ILIKE $%d)", argIdx, argIdx, argIdx)
		args = append(args, "%"+q.Search+"%")
		argIdx++
	}

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM hotels"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count hotels: %w", err)
	}

	query := "SELECT " + hotelColumns + " FROM hotels" + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, q.Limit, (q.Page-1)*q.Limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query hotels: %w", err)
	}
	defer rows.Close()

	var hotels []models.Hotel
	for rows.Next() {
		h, err := scanHotel(rows)
		if err != nil {
			return nil, 0, err
		}
		hotels = append(hotels, *h)
	}
	return hotels, total, rows.Err()
}

// UpdateDetails persists the editable display fields together with its
// audit entry.
func (s *Store) UpdateDetails(ctx context.Context, h *models.Hotel, entry audit.Entry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE hotels SET name = $1, city = $2, phone = $3, email = $4, plan = $5, updated_at = now()
			 WHERE id = $6`,
			h.Name, h.City, h.Phone, h.Email, h.Plan, h.ID)
		if err != nil {
			return fmt.Errorf("update hotel details: %w", err)
		}
		return s.audits.AppendTx(ctx, tx, entry)
	})
}

// SetStatus persists a lifecycle transition plus payment bookkeeping.
func (s *Store) SetStatus(ctx context.Context, h *models.Hotel, entry audit.Entry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE hotels SET status = $1, paid_until = $2, last_payment_note = $3, updated_at = now()
			 WHERE id = $4`,
			h.Status, h.PaidUntil, h.LastPaymentNote, h.ID)
		if err != nil {
			return fmt.Errorf("update hotel status: %w", err)
		}
		return s.audits.AppendTx(ctx, tx, entry)
	})
}

// UpdateTheme persists the owner's theme choice with its audit entry.
func (s *Store) UpdateTheme(ctx context.Context, h *models.Hotel, entry audit.Entry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"UPDATE hotels SET theme = $1, updated_at = now() WHERE id = $2", h.Theme, h.ID)
		if err != nil {
			return fmt.Errorf("update hotel theme: %w", err)
		}
		return s.audits.AppendTx(ctx, tx, entry)
	})
}

// UpdatePin persists a new credential hash and its tracking fields in one
// transaction with the audit entry.
func (s *Store) UpdatePin(ctx context.Context, h *models.Hotel, entry audit.Entry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE hotels SET pin_hash = $1, pin_changed_at = $2, pin_reset_count = pin_reset_count + 1,
				last_pin_reset_at = $2, last_pin_reset_by = $3, updated_at = now()
			 WHERE id = $4`,
			h.PinHash, h.LastPinResetAt, h.LastPinResetBy, h.ID)
		if err != nil {
			return fmt.Errorf("update hotel pin: %w", err)
		}
		return s.audits.AppendTx(ctx, tx, entry)
	})
}

// SoftDelete applies PII anonymization, reassigns owner-authored audit
// entries to the anonymous actor, and appends the deletion entry in a
// single transaction.
func (s *Store) SoftDelete(ctx context.Context, h *models.Hotel, entry audit.Entry) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE hotels SET status = $1, name = $2, phone = $3, email = NULL, pin_hash = $4,
				deleted_at = $5, deleted_by = $6, purge_after = $7, updated_at = now()
			 WHERE id = $8`,
			h.Status, h.Name, h.Phone, h.PinHash, h.DeletedAt, h.DeletedBy, h.PurgeAfter, h.ID)
		if err != nil {
			return fmt.Errorf("soft delete hotel: %w", err)
		}
		if err := s.audits.ReassignActorTx(ctx, tx, h.ID, models.ActorOwner, models.ActorDeletedUser); err != nil {
			return err
		}
		return s.audits.AppendTx(ctx, tx, entry)
	})
}

// CollectImageRefs gathers all externally-stored asset references owned by
// the tenant, for best-effort deletion before the purge.
func (s *Store) CollectImageRefs(ctx context.Context, id uuid.UUID) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT i.image_url FROM items i
		 JOIN categories c ON c.id = i.category_id
		 WHERE c.hotel_id = $1 AND i.image_url IS NOT NULL`, id)
	if err != nil {
		return nil, fmt.Errorf("collect image refs: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan image ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// Purge removes the tenant and all dependents in one transaction, leaves
// first. Returns NotFound once the record is gone, which makes a second
// purge call fail.
func (s *Store) Purge(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM items WHERE category_id IN (SELECT id FROM categories WHERE hotel_id = $1)`, id); err != nil {
			return fmt.Errorf("purge items: %w", err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM categories WHERE hotel_id = $1", id); err != nil {
			return fmt.Errorf("purge categories: %w", err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM audit_logs WHERE hotel_id = $1", id); err != nil {
			return fmt.Errorf("purge audit logs: %w", err)
		}
		tag, err := tx.Exec(ctx, "DELETE FROM hotels WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("purge hotel: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("hotel not found")
		}
		return nil
	})
}

// ListPurgeDue returns tenants whose retention window has elapsed.
func (s *Store) ListPurgeDue(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id FROM hotels WHERE status = $1 AND purge_after IS NOT NULL AND purge_after <= $2",
		models.StatusDeleted, before)
	if err != nil {
		return nil, fmt.Errorf("list purge due: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan purge due id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IncrementViews bumps the public view counter. Callers treat failures as
// best-effort.
func (s *Store) IncrementViews(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		"UPDATE hotels SET views = views + 1, last_view_at = now() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
