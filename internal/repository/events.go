package repository

import (
	"context"
	"database/sql"

	"turnstile/internal/database"
	"turnstile/internal/models"
)

type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (title, total_seats, available_seats, locked_seats, sold_seats,
		                    sale_start, sale_end, status, per_user_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, version, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		event.Title,
		event.TotalSeats,
		event.AvailableSeats,
		event.LockedSeats,
		event.SoldSeats,
		event.SaleStart,
		event.SaleEnd,
		event.Status,
		event.PerUserLimit,
	).Scan(&event.ID, &event.Version, &event.CreatedAt, &event.UpdatedAt)

	return err
}

func (r *EventRepository) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	event := &models.Event{}
	query := `
		SELECT id, title, total_seats, available_seats, locked_seats, sold_seats,
		       version, sale_start, sale_end, status, per_user_limit, created_at, updated_at
		FROM events
		WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&event.ID,
		&event.Title,
		&event.TotalSeats,
		&event.AvailableSeats,
		&event.LockedSeats,
		&event.SoldSeats,
		&event.Version,
		&event.SaleStart,
		&event.SaleEnd,
		&event.Status,
		&event.PerUserLimit,
		&event.CreatedAt,
		&event.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return event, err
}

// Reserve moves count seats from available to locked, conditioned on enough
// availability and the caller's version still being current. A false return
// means the caller must re-read and retry (bounded), not that something broke.
func (r *EventRepository) Reserve(ctx context.Context, eventID int64, count int, expectedVersion int64) (bool, error) {
	query := `
		UPDATE events
		SET available_seats = available_seats - $1,
		    locked_seats = locked_seats + $1,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $2 AND available_seats >= $1 AND version = $3`

	return r.execCounter(ctx, query, count, eventID, expectedVersion)
}

// Confirm moves count seats from locked to sold once an order is paid.
func (r *EventRepository) Confirm(ctx context.Context, eventID int64, count int) (bool, error) {
	query := `
		UPDATE events
		SET locked_seats = locked_seats - $1,
		    sold_seats = sold_seats + $1,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $2 AND locked_seats >= $1`

	return r.execCounter(ctx, query, count, eventID)
}

// Release moves count seats from locked back to available. The locked >= count
// guard makes re-running a partially crashed release a safe no-op.
func (r *EventRepository) Release(ctx context.Context, eventID int64, count int) (bool, error) {
	query := `
		UPDATE events
		SET available_seats = available_seats + $1,
		    locked_seats = locked_seats - $1,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $2 AND locked_seats >= $1`

	return r.execCounter(ctx, query, count, eventID)
}

// MarkSoldOut flips a SELLING event with no available seats to SOLD_OUT.
// Best effort; counter correctness never depends on the status flag.
func (r *EventRepository) MarkSoldOut(ctx context.Context, eventID int64) (bool, error) {
	query := `
		UPDATE events
		SET status = 'SOLD_OUT', updated_at = NOW()
		WHERE id = $1 AND status = 'SELLING' AND available_seats = 0`

	result, err := r.db.ExecContext(ctx, query, eventID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected == 1, err
}

// ReopenSelling flips a SOLD_OUT event back to SELLING after seats return
// to inventory.
func (r *EventRepository) ReopenSelling(ctx context.Context, eventID int64) (bool, error) {
	query := `
		UPDATE events
		SET status = 'SELLING', updated_at = NOW()
		WHERE id = $1 AND status = 'SOLD_OUT' AND available_seats > 0`

	result, err := r.db.ExecContext(ctx, query, eventID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected == 1, err
}

func (r *EventRepository) execCounter(ctx context.Context, query string, count int, args ...interface{}) (bool, error) {
	execArgs := append([]interface{}{count}, args...)
	result, err := r.db.ExecContext(ctx, query, execArgs...)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}
