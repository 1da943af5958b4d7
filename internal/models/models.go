package models

import "time"

// ReserveSeatsRequest is the purchase-intent message delivered by the
// upstream ingress queue. Delivery is at-least-once; the idempotency key
// absorbs duplicates.
type ReserveSeatsRequest struct {
	RequestID      string   `json:"request_id"`
	UserID         int64    `json:"user_id" binding:"required"`
	EventID        int64    `json:"event_id" binding:"required"`
	SeatIDs        []string `json:"seat_ids" binding:"required"`
	IdempotencyKey string   `json:"idempotency_key" binding:"required"`
}

// ReserveSeatsResponse is returned to the caller on a successful reservation.
type ReserveSeatsResponse struct {
	OrderID     int64     `json:"order_id"`
	OrderNo     string    `json:"order_no"`
	SeatCount   int       `json:"seat_count"`
	TotalAmount int64     `json:"total_amount"`
	Status      string    `json:"status"`
	ExpireTime  time.Time `json:"expire_time"`
}

// PaymentNotificationPayload is the webhook body posted by the payment
// gateway after it settles a payment attempt.
type PaymentNotificationPayload struct {
	OrderID   int64     `json:"orderId" binding:"required"`
	PayType   string    `json:"payType"`
	PayTime   time.Time `json:"payTime"`
	Success   bool      `json:"success"`
	Timestamp string    `json:"timestamp"`
}

// CancelOrderRequest asks the engine to cancel a pending order and release
// its seats.
type CancelOrderRequest struct {
	OrderID int64 `json:"order_id" binding:"required"`
}

// GetOrderResponse is the read model exposed to collaborators.
type GetOrderResponse struct {
	ID          int64      `json:"id"`
	OrderNo     string     `json:"order_no"`
	EventID     int64      `json:"event_id"`
	UserID      int64      `json:"user_id"`
	SeatCount   int        `json:"seat_count"`
	TotalAmount int64      `json:"total_amount"`
	Status      string     `json:"status"`
	ExpireTime  time.Time  `json:"expire_time"`
	PayTime     *time.Time `json:"pay_time,omitempty"`
	Seats       []Seat     `json:"seats,omitempty"`
}

// CreateEventRequest sets up an event and its seat map at catalog time,
// before selling opens. A uniform zone layout keeps setup to one call.
type CreateEventRequest struct {
	Title        string    `json:"title" binding:"required"`
	Zone         string    `json:"zone" binding:"required"`
	Rows         int       `json:"rows" binding:"required,min=1"`
	SeatsPerRow  int       `json:"seats_per_row" binding:"required,min=1"`
	Price        int64     `json:"price" binding:"required,min=0"`
	SaleStart    time.Time `json:"sale_start" binding:"required"`
	SaleEnd      time.Time `json:"sale_end" binding:"required"`
	PerUserLimit int       `json:"per_user_limit"`
}

// CreateEventResponse returns the created event with its final counters.
type CreateEventResponse struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	TotalSeats int    `json:"total_seats"`
	Status     string `json:"status"`
}

// EventAvailabilityResponse is the fast aggregate read for an event.
type EventAvailabilityResponse struct {
	EventID        int64  `json:"event_id"`
	Status         string `json:"status"`
	TotalSeats     int    `json:"total_seats"`
	AvailableSeats int    `json:"available_seats"`
	LockedSeats    int    `json:"locked_seats"`
	SoldSeats      int    `json:"sold_seats"`
}
