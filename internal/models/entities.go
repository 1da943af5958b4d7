package models

import (
	"time"
)

// Event statuses
const (
	EventPending = "PENDING"
	EventSelling = "SELLING"
	EventSoldOut = "SOLD_OUT"
	EventEnded   = "ENDED"
)

// Seat statuses
const (
	SeatAvailable = "AVAILABLE"
	SeatLocked    = "LOCKED"
	SeatSold      = "SOLD"
)

// Order statuses. Transitions are one-way: PENDING -> {PAID, CANCELLED, TIMEOUT}.
const (
	OrderPending   = "PENDING"
	OrderPaid      = "PAID"
	OrderCancelled = "CANCELLED"
	OrderTimeout   = "TIMEOUT"
)

// Event represents a sellable event with its aggregate seat counters.
// Invariant: available_seats + locked_seats + sold_seats == total_seats.
// Version increments on every successful counter mutation.
type Event struct {
	ID             int64     `json:"id" db:"id"`
	Title          string    `json:"title" db:"title"`
	TotalSeats     int       `json:"total_seats" db:"total_seats"`
	AvailableSeats int       `json:"available_seats" db:"available_seats"`
	LockedSeats    int       `json:"locked_seats" db:"locked_seats"`
	SoldSeats      int       `json:"sold_seats" db:"sold_seats"`
	Version        int64     `json:"version" db:"version"`
	SaleStart      time.Time `json:"sale_start" db:"sale_start"`
	SaleEnd        time.Time `json:"sale_end" db:"sale_end"`
	Status         string    `json:"status" db:"status"`
	PerUserLimit   int       `json:"per_user_limit" db:"per_user_limit"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Seat represents a single sellable seat. Holder fields are set only while
// the seat is LOCKED; an AVAILABLE seat carries no holder or expiry.
type Seat struct {
	ID             string     `json:"id" db:"id"`
	EventID        int64      `json:"event_id" db:"event_id"`
	Zone           string     `json:"zone" db:"zone"`
	Row            int        `json:"row" db:"row_number"`
	Number         int        `json:"number" db:"seat_number"`
	Code           string     `json:"code" db:"code"`
	Price          int64      `json:"price" db:"price"`
	Status         string     `json:"status" db:"status"`
	LockTime       *time.Time `json:"lock_time" db:"lock_time"`
	LockExpireTime *time.Time `json:"lock_expire_time" db:"lock_expire_time"`
	HoldingOrderID *int64     `json:"holding_order_id" db:"holding_order_id"`
	HoldingUserID  *int64     `json:"holding_user_id" db:"holding_user_id"`
	Version        int64      `json:"version" db:"version"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Order represents a reservation holding one or more seats until payment
// or expiry.
type Order struct {
	ID             int64      `json:"id" db:"id"`
	OrderNo        string     `json:"order_no" db:"order_no"`
	EventID        int64      `json:"event_id" db:"event_id"`
	UserID         int64      `json:"user_id" db:"user_id"`
	SeatCount      int        `json:"seat_count" db:"seat_count"`
	TotalAmount    int64      `json:"total_amount" db:"total_amount"`
	Status         string     `json:"status" db:"status"`
	IdempotencyKey string     `json:"idempotency_key" db:"idempotency_key"`
	ExpireTime     time.Time  `json:"expire_time" db:"expire_time"`
	PayType        *string    `json:"pay_type" db:"pay_type"`
	PayTime        *time.Time `json:"pay_time" db:"pay_time"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// OrderSeat links an order to a seat with the price captured at reservation
// time. Rows are created atomically with the order and never mutated.
type OrderSeat struct {
	OrderID       int64  `json:"order_id" db:"order_id"`
	SeatID        string `json:"seat_id" db:"seat_id"`
	EventID       int64  `json:"event_id" db:"event_id"`
	PriceSnapshot int64  `json:"price_snapshot" db:"price_snapshot"`
}

// UserPurchaseRecord tracks how many tickets a user holds against an event's
// per-user limit. The count includes PENDING orders, so abandoned carts keep
// counting until the sweeper times them out.
type UserPurchaseRecord struct {
	UserID      int64     `json:"user_id" db:"user_id"`
	EventID     int64     `json:"event_id" db:"event_id"`
	TicketCount int       `json:"ticket_count" db:"ticket_count"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
