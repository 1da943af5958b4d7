package models

import "time"

// NATS subjects. purchase.requested is consumed from the upstream ingress;
// the rest are published for downstream collaborators (cache invalidation,
// user notification).
const (
	SubjectPurchaseRequested = "purchase.requested"
	SubjectOrderCreated      = "order.created"
	SubjectOrderPaid         = "order.paid"
	SubjectOrderCancelled    = "order.cancelled"
	SubjectOrderExpired      = "order.expired"
	SubjectSeatsReleased     = "seats.released"
)

// OrderCreatedEvent is published when a reservation produces a PENDING order.
type OrderCreatedEvent struct {
	OrderID    int64     `json:"order_id"`
	OrderNo    string    `json:"order_no"`
	EventID    int64     `json:"event_id"`
	UserID     int64     `json:"user_id"`
	SeatCount  int       `json:"seat_count"`
	ExpireTime time.Time `json:"expire_time"`
	Timestamp  time.Time `json:"timestamp"`
}

// OrderPaidEvent is published when a payment callback wins the PENDING guard.
type OrderPaidEvent struct {
	OrderID   int64     `json:"order_id"`
	EventID   int64     `json:"event_id"`
	UserID    int64     `json:"user_id"`
	PayType   string    `json:"pay_type"`
	PayTime   time.Time `json:"pay_time"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCancelledEvent is published when an order is cancelled and its seats
// returned to inventory.
type OrderCancelledEvent struct {
	OrderID   int64     `json:"order_id"`
	EventID   int64     `json:"event_id"`
	UserID    int64     `json:"user_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderExpiredEvent is published by the sweeper after it times out a
// pending order.
type OrderExpiredEvent struct {
	OrderID       int64     `json:"order_id"`
	EventID       int64     `json:"event_id"`
	UserID        int64     `json:"user_id"`
	SeatsReleased int       `json:"seats_released"`
	Timestamp     time.Time `json:"timestamp"`
}

// SeatsReleasedEvent is published whenever seats return to AVAILABLE outside
// the paid path.
type SeatsReleasedEvent struct {
	EventID   int64     `json:"event_id"`
	SeatIDs   []string  `json:"seat_ids"`
	Timestamp time.Time `json:"timestamp"`
}
