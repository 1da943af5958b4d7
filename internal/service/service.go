// Package service implements the purchase coordinator and the payment
// reconciliation path. Correctness does not rely on in-process mutual
// exclusion: every inventory mutation is a conditional update at the storage
// layer, and a false return from a store is an ordinary contention signal.
package service

import (
	"context"
	"time"

	"turnstile/internal/config"
	"turnstile/internal/models"
)

// SeatStore is the per-seat row store with conditional transitions.
type SeatStore interface {
	GetByID(ctx context.Context, id string) (*models.Seat, error)
	GetByOrderID(ctx context.Context, orderID int64) ([]models.Seat, error)
	Lock(ctx context.Context, seatID string, userID, orderID int64, expireAt time.Time, expectedVersion int64) (bool, error)
	ConfirmSold(ctx context.Context, seatID string) (bool, error)
	Release(ctx context.Context, seatID string) (bool, error)
	ReleaseBatch(ctx context.Context, seatIDs []string) (int, error)
	ReleaseExpired(ctx context.Context, now time.Time) (map[int64]int, error)
}

// EventStore is the aggregate counter store on the event record.
type EventStore interface {
	GetByID(ctx context.Context, id int64) (*models.Event, error)
	Reserve(ctx context.Context, eventID int64, count int, expectedVersion int64) (bool, error)
	Confirm(ctx context.Context, eventID int64, count int) (bool, error)
	Release(ctx context.Context, eventID int64, count int) (bool, error)
	MarkSoldOut(ctx context.Context, eventID int64) (bool, error)
	ReopenSelling(ctx context.Context, eventID int64) (bool, error)
}

// OrderStore persists orders with guarded one-way status transitions.
type OrderStore interface {
	NextID(ctx context.Context) (int64, error)
	Create(ctx context.Context, order *models.Order, seats []models.OrderSeat) error
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	MarkPaid(ctx context.Context, orderID int64, payType string, payTime time.Time) (bool, error)
	MarkCancelled(ctx context.Context, orderID int64) (bool, error)
	MarkTimeout(ctx context.Context, orderID int64) (bool, error)
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	GetSeatIDs(ctx context.Context, orderID int64) ([]string, error)
	DeleteSeats(ctx context.Context, orderID int64) error
}

// PurchaseStore tracks per-user ticket counts against the event limit.
type PurchaseStore interface {
	Get(ctx context.Context, userID, eventID int64) (int, error)
	Increment(ctx context.Context, userID, eventID int64, count, limit int) (bool, error)
	Decrement(ctx context.Context, userID, eventID int64, count int) error
}

// Locker is lease-based mutual exclusion: acquire(key, ttl) -> token | fail.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key string, token string) error
}

// Publisher emits order-state-changed notifications for downstream
// collaborators. Publish failures never fail a storage mutation.
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// Services holds all service instances
type Services struct {
	Reservations *ReservationService
	Payments     *PaymentService
}

type Stores struct {
	Seats     SeatStore
	Events    EventStore
	Orders    OrderStore
	Purchases PurchaseStore
}

// NewServices creates all services
func NewServices(stores Stores, locker Locker, publisher Publisher, cfg config.ReservationConfig) *Services {
	return &Services{
		Reservations: NewReservationService(stores, locker, publisher, cfg),
		Payments:     NewPaymentService(stores, publisher),
	}
}
