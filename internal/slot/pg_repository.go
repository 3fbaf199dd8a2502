package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgxpool.Pool the repository uses; pgxmock
// implements it for tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// NewPgRepositoryWithQuerier allows injecting mocks for tests.
func NewPgRepositoryWithQuerier(q querier) *PgRepository {
	return &PgRepository{pool: q}
}

// Helpers

// wrapStoreErr classifies timeouts and cancelled contexts as transient so
// callers can retry, and wraps everything else with the operation name.
func wrapStoreErr(op string, err error) error {
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrStoreUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var email *string
	var noticeSecs *int64

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&noticeSecs,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, wrapStoreErr("scan provider", err)
	}

	p.Email = email
	if noticeSecs != nil {
		d := time.Duration(*noticeSecs) * time.Second
		p.MinCancelNotice = &d
	}
	return &p, nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	var email *string

	err := row.Scan(
		&c.ID,
		&c.Name,
		&email,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, wrapStoreErr("scan client", err)
	}

	c.Email = email
	return &c, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var clientRef *uuid.UUID
	var deletedAt *time.Time

	err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.ScheduledAt,
		&s.Status,
		&clientRef,
		&s.Notes,
		&s.CreatedAt,
		&s.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, wrapStoreErr("scan slot", err)
	}

	if !s.Status.Valid() {
		return nil, fmt.Errorf("slot %s has unknown status %q", s.ID, s.Status)
	}

	s.ClientRef = clientRef
	s.DeletedAt = deletedAt
	s.ScheduledAt = s.ScheduledAt.UTC()
	return &s, nil
}

const slotColumns = `id, owner_id, scheduled_at, status, client_ref, notes, created_at, updated_at, deleted_at`

// Interface methods

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, min_cancel_notice_secs, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id)
	return scanClient(row)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) InsertAvailableSlots(ctx context.Context, ownerID uuid.UUID, instants []time.Time, notes string) ([]Slot, error) {
	if len(instants) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(instants))
	for i := range instants {
		ids[i] = uuid.New()
	}

	rows, err := r.pool.Query(ctx, `
		INSERT INTO slots (id, owner_id, scheduled_at, status, notes, created_at, updated_at)
		SELECT u.id, $1, u.at, 'available', $4, now(), now()
		FROM unnest($2::uuid[], $3::timestamptz[]) AS u(id, at)
		ON CONFLICT (owner_id, scheduled_at) WHERE deleted_at IS NULL AND status <> 'cancelled'
		DO NOTHING
		RETURNING `+slotColumns+`
	`, ownerID, ids, instants, notes)
	if err != nil {
		return nil, wrapStoreErr("insert available slots", err)
	}
	defer rows.Close()

	var created []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		created = append(created, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("insert available slots", err)
	}

	return created, nil
}

func (r *PgRepository) OccupiedBetween(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scheduled_at
		FROM slots
		WHERE owner_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		  AND deleted_at IS NULL
		  AND status <> 'cancelled'
	`, ownerID, from, to)
	if err != nil {
		return nil, wrapStoreErr("query occupied instants", err)
	}
	defer rows.Close()

	var occupied []time.Time
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			return nil, wrapStoreErr("scan occupied instant", err)
		}
		occupied = append(occupied, at.UTC())
	}

	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("query occupied instants", err)
	}

	return occupied, nil
}

func (r *PgRepository) ClaimSlot(ctx context.Context, slotID, clientRef uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'booked',
		    client_ref = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'available'
		  AND deleted_at IS NULL
		RETURNING `+slotColumns+`
	`, slotID, clientRef)
	return scanSlot(row)
}

func (r *PgRepository) CancelSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'cancelled',
		    client_ref = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
		  AND deleted_at IS NULL
		RETURNING `+slotColumns+`
	`, slotID)
	return scanSlot(row)
}

func (r *PgRepository) CompleteSlot(ctx context.Context, slotID uuid.UUID, notes string) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = 'completed',
		    notes = CASE
		        WHEN $2 = '' THEN notes
		        WHEN notes = '' THEN $2
		        ELSE notes || E'\n' || $2
		    END,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
		  AND deleted_at IS NULL
		RETURNING `+slotColumns+`
	`, slotID, notes)
	return scanSlot(row)
}

func (r *PgRepository) SoftDeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET deleted_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'available'
		  AND deleted_at IS NULL
	`, slotID)
	if err != nil {
		return wrapStoreErr("soft delete slot", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) ListSlotsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY scheduled_at
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, wrapStoreErr("list slots", err)
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("list slots", err)
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev SlotEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO slot_events (slot_id, from_status, to_status, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.SlotID, ev.FromStatus, ev.ToStatus, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return wrapStoreErr("insert slot event", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
