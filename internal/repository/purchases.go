package repository

import (
	"context"
	"database/sql"

	"turnstile/internal/database"
)

type PurchaseRecordRepository struct {
	db *database.DB
}

func NewPurchaseRecordRepository(db *database.DB) *PurchaseRecordRepository {
	return &PurchaseRecordRepository{db: db}
}

// Get returns the user's current ticket count for an event, zero when the
// user has never reserved for it.
func (r *PurchaseRecordRepository) Get(ctx context.Context, userID, eventID int64) (int, error) {
	var count int
	query := `SELECT ticket_count FROM user_purchase_records WHERE user_id = $1 AND event_id = $2`

	err := r.db.QueryRowContext(ctx, query, userID, eventID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}

	return count, err
}

// Increment adds count tickets to the user's record, conditioned on the
// result staying within limit. The guard lives in the statement so the
// invariant holds across process instances, not just behind the per-user
// lock. Returns false when the increment would exceed the limit.
func (r *PurchaseRecordRepository) Increment(ctx context.Context, userID, eventID int64, count, limit int) (bool, error) {
	if count > limit {
		return false, nil
	}

	query := `
		INSERT INTO user_purchase_records (user_id, event_id, ticket_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, event_id) DO UPDATE
		SET ticket_count = user_purchase_records.ticket_count + $3,
		    updated_at = NOW()
		WHERE user_purchase_records.ticket_count + $3 <= $4`

	result, err := r.db.ExecContext(ctx, query, userID, eventID, count, limit)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

// Decrement returns quota when an order is cancelled or times out. Floors at
// zero so a double-run of the same sweep step cannot go negative.
func (r *PurchaseRecordRepository) Decrement(ctx context.Context, userID, eventID int64, count int) error {
	query := `
		UPDATE user_purchase_records
		SET ticket_count = GREATEST(ticket_count - $3, 0),
		    updated_at = NOW()
		WHERE user_id = $1 AND event_id = $2`

	_, err := r.db.ExecContext(ctx, query, userID, eventID, count)
	return err
}
