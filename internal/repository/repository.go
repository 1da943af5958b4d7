package repository

import (
	"errors"

	"github.com/lib/pq"

	"turnstile/internal/database"
)

// Repositories holds all repository instances
type Repositories struct {
	Events    *EventRepository
	Seats     *SeatRepository
	Orders    *OrderRepository
	Purchases *PurchaseRecordRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Events:    NewEventRepository(db),
		Seats:     NewSeatRepository(db),
		Orders:    NewOrderRepository(db),
		Purchases: NewPurchaseRecordRepository(db),
	}
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation. Used to recover duplicate idempotency keys on order create.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
