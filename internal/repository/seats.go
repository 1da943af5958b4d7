package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"turnstile/internal/database"
	"turnstile/internal/models"
)

type SeatRepository struct {
	db *database.DB
}

func NewSeatRepository(db *database.DB) *SeatRepository {
	return &SeatRepository{db: db}
}

// CreateSeatsForEvent bulk-creates the seat grid for an event at catalog
// setup time and initializes the event's aggregate counters to match.
func (r *SeatRepository) CreateSeatsForEvent(ctx context.Context, eventID int64, zone string, rows, seatsPerRow int, price int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO seats (event_id, zone, row_number, seat_number, code, price, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'AVAILABLE')`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for row := 1; row <= rows; row++ {
		for seat := 1; seat <= seatsPerRow; seat++ {
			code := fmt.Sprintf("%s-%d-%d", zone, row, seat)
			if _, err := stmt.ExecContext(ctx, eventID, zone, row, seat, code, price); err != nil {
				return err
			}
		}
	}

	total := rows * seatsPerRow
	updateQuery := `
		UPDATE events
		SET total_seats = total_seats + $1,
		    available_seats = available_seats + $1,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $2`
	if _, err := tx.ExecContext(ctx, updateQuery, total, eventID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SeatRepository) GetByID(ctx context.Context, id string) (*models.Seat, error) {
	seat := &models.Seat{}
	query := `
		SELECT id, event_id, zone, row_number, seat_number, code, price, status,
		       lock_time, lock_expire_time, holding_order_id, holding_user_id,
		       version, created_at, updated_at
		FROM seats
		WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&seat.ID,
		&seat.EventID,
		&seat.Zone,
		&seat.Row,
		&seat.Number,
		&seat.Code,
		&seat.Price,
		&seat.Status,
		&seat.LockTime,
		&seat.LockExpireTime,
		&seat.HoldingOrderID,
		&seat.HoldingUserID,
		&seat.Version,
		&seat.CreatedAt,
		&seat.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return seat, err
}

func (r *SeatRepository) GetByOrderID(ctx context.Context, orderID int64) ([]models.Seat, error) {
	query := `
		SELECT s.id, s.event_id, s.zone, s.row_number, s.seat_number, s.code, s.price, s.status,
		       s.lock_time, s.lock_expire_time, s.holding_order_id, s.holding_user_id,
		       s.version, s.created_at, s.updated_at
		FROM seats s
		JOIN order_seats os ON s.id = os.seat_id
		WHERE os.order_id = $1
		ORDER BY s.zone, s.row_number, s.seat_number`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []models.Seat
	for rows.Next() {
		var seat models.Seat
		err := rows.Scan(
			&seat.ID,
			&seat.EventID,
			&seat.Zone,
			&seat.Row,
			&seat.Number,
			&seat.Code,
			&seat.Price,
			&seat.Status,
			&seat.LockTime,
			&seat.LockExpireTime,
			&seat.HoldingOrderID,
			&seat.HoldingUserID,
			&seat.Version,
			&seat.CreatedAt,
			&seat.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		seats = append(seats, seat)
	}

	return seats, rows.Err()
}

// Lock transitions one AVAILABLE seat to LOCKED for an order. It succeeds
// only when the caller's version still matches; a false return is the
// ordinary contention signal, not an error.
func (r *SeatRepository) Lock(ctx context.Context, seatID string, userID, orderID int64, expireAt time.Time, expectedVersion int64) (bool, error) {
	query := `
		UPDATE seats
		SET status = 'LOCKED',
		    lock_time = NOW(),
		    lock_expire_time = $1,
		    holding_order_id = $2,
		    holding_user_id = $3,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $4 AND status = 'AVAILABLE' AND version = $5`

	result, err := r.db.ExecContext(ctx, query, expireAt, orderID, userID, seatID, expectedVersion)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

// ConfirmSold transitions LOCKED -> SOLD. A seat that is not currently
// LOCKED is left untouched, which guards against duplicate payment
// callbacks.
func (r *SeatRepository) ConfirmSold(ctx context.Context, seatID string) (bool, error) {
	query := `
		UPDATE seats
		SET status = 'SOLD',
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'LOCKED'`

	result, err := r.db.ExecContext(ctx, query, seatID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

// Release transitions LOCKED -> AVAILABLE and clears the holder fields.
// No-ops on seats that are not LOCKED.
func (r *SeatRepository) Release(ctx context.Context, seatID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, releaseQuery+` AND id = $1`, seatID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

// ReleaseBatch releases every seat in seatIDs that is currently LOCKED and
// returns how many actually transitioned.
func (r *SeatRepository) ReleaseBatch(ctx context.Context, seatIDs []string) (int, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx, releaseQuery+` AND id = ANY($1::uuid[])`, pq.Array(seatIDs))
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(affected), nil
}

// ReleaseExpired releases every LOCKED seat whose hold window has passed and
// returns the released count per event, so callers can restore each event's
// available counter by exactly the released amount. Idempotent; safe to run
// concurrently with itself and with ConfirmSold or Release, since whichever
// conditional update wins determines the outcome.
func (r *SeatRepository) ReleaseExpired(ctx context.Context, now time.Time) (map[int64]int, error) {
	rows, err := r.db.QueryContext(ctx, releaseQuery+` AND lock_expire_time < $1 RETURNING event_id`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	released := make(map[int64]int)
	for rows.Next() {
		var eventID int64
		if err := rows.Scan(&eventID); err != nil {
			return nil, err
		}
		released[eventID]++
	}

	return released, rows.Err()
}

const releaseQuery = `
	UPDATE seats
	SET status = 'AVAILABLE',
	    lock_time = NULL,
	    lock_expire_time = NULL,
	    holding_order_id = NULL,
	    holding_user_id = NULL,
	    version = version + 1,
	    updated_at = NOW()
	WHERE status = 'LOCKED'`
