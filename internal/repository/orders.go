package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"turnstile/internal/database"
	"turnstile/internal/models"
)

type OrderRepository struct {
	db *database.DB
}

func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// NextID allocates an order ID from the sequence before the row exists, so
// seats can be locked against the order ID ahead of the order insert.
func (r *OrderRepository) NextID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT nextval('orders_id_seq')`).Scan(&id)
	return id, err
}

// Create writes the PENDING order and its order_seats rows in one
// transaction.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order, seats []models.OrderSeat) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	orderQuery := `
		INSERT INTO orders (id, order_no, event_id, user_id, seat_count, total_amount,
		                    status, idempotency_key, expire_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err = tx.QueryRowContext(ctx, orderQuery,
		order.ID,
		order.OrderNo,
		order.EventID,
		order.UserID,
		order.SeatCount,
		order.TotalAmount,
		order.Status,
		order.IdempotencyKey,
		order.ExpireTime,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_seats (order_id, seat_id, event_id, price_snapshot)
		VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("failed to prepare order_seats statement: %w", err)
	}
	defer stmt.Close()

	for _, seat := range seats {
		if _, err := stmt.ExecContext(ctx, seat.OrderID, seat.SeatID, seat.EventID, seat.PriceSnapshot); err != nil {
			return fmt.Errorf("failed to insert order seat %s: %w", seat.SeatID, err)
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	return r.getOne(ctx, `WHERE idempotency_key = $1`, key)
}

func (r *OrderRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.Order, error) {
	order := &models.Order{}
	query := `
		SELECT id, order_no, event_id, user_id, seat_count, total_amount, status,
		       idempotency_key, expire_time, pay_type, pay_time, created_at, updated_at
		FROM orders ` + where

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&order.ID,
		&order.OrderNo,
		&order.EventID,
		&order.UserID,
		&order.SeatCount,
		&order.TotalAmount,
		&order.Status,
		&order.IdempotencyKey,
		&order.ExpireTime,
		&order.PayType,
		&order.PayTime,
		&order.CreatedAt,
		&order.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return order, err
}

// MarkPaid transitions PENDING -> PAID. Exactly one of the payment callback
// and the sweeper wins this guard; the loser sees false.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID int64, payType string, payTime time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET status = 'PAID', pay_type = $1, pay_time = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'PENDING'`

	return r.execGuarded(ctx, query, payType, payTime, orderID)
}

// MarkCancelled transitions PENDING -> CANCELLED.
func (r *OrderRepository) MarkCancelled(ctx context.Context, orderID int64) (bool, error) {
	query := `
		UPDATE orders
		SET status = 'CANCELLED', updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	return r.execGuarded(ctx, query, orderID)
}

// MarkTimeout transitions PENDING -> TIMEOUT.
func (r *OrderRepository) MarkTimeout(ctx context.Context, orderID int64) (bool, error) {
	query := `
		UPDATE orders
		SET status = 'TIMEOUT', updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	return r.execGuarded(ctx, query, orderID)
}

// FindExpiredPending returns PENDING orders whose hold window has passed,
// oldest first, for the sweeper.
func (r *OrderRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	query := `
		SELECT id, order_no, event_id, user_id, seat_count, total_amount, status,
		       idempotency_key, expire_time, pay_type, pay_time, created_at, updated_at
		FROM orders
		WHERE status = 'PENDING' AND expire_time < $1
		ORDER BY expire_time ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.OrderNo,
			&order.EventID,
			&order.UserID,
			&order.SeatCount,
			&order.TotalAmount,
			&order.Status,
			&order.IdempotencyKey,
			&order.ExpireTime,
			&order.PayType,
			&order.PayTime,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// GetSeatIDs returns the seat ids held by an order.
func (r *OrderRepository) GetSeatIDs(ctx context.Context, orderID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT seat_id FROM order_seats WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// DeleteSeats removes the order_seats rows for an order. Only called on the
// cancel path after every seat was released; the owning order is terminal
// by then.
func (r *OrderRepository) DeleteSeats(ctx context.Context, orderID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM order_seats WHERE order_id = $1`, orderID)
	return err
}

func (r *OrderRepository) execGuarded(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}
