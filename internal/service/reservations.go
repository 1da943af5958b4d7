package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"turnstile/internal/apperr"
	"turnstile/internal/config"
	"turnstile/internal/lock"
	"turnstile/internal/logger"
	"turnstile/internal/metrics"
	"turnstile/internal/models"
	"turnstile/internal/repository"
)

// ReservationService is the purchase coordinator. It serializes one user's
// submissions for one event behind a TTL lock, then drives the two-phase
// reservation: event counter first, per-seat locks second, with explicit
// compensation on partial failure. There is no cross-store transaction
// spanning those steps.
type ReservationService struct {
	stores    Stores
	locker    Locker
	publisher Publisher
	cfg       config.ReservationConfig
}

func NewReservationService(stores Stores, locker Locker, publisher Publisher, cfg config.ReservationConfig) *ReservationService {
	return &ReservationService{
		stores:    stores,
		locker:    locker,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Reserve handles one purchase-intent request and returns the PENDING order
// on success. Requests are delivered at-least-once; a duplicate idempotency
// key returns the already-created order without touching inventory again.
func (s *ReservationService) Reserve(ctx context.Context, req *models.ReserveSeatsRequest) (*models.ReserveSeatsResponse, error) {
	seatIDs := dedupe(req.SeatIDs)
	if len(seatIDs) == 0 {
		return nil, fmt.Errorf("no seats requested")
	}
	count := len(seatIDs)

	if existing, err := s.stores.Orders.GetByIdempotencyKey(ctx, req.IdempotencyKey); err != nil {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	} else if existing != nil {
		metrics.ReservationsTotal.WithLabelValues("duplicate").Inc()
		return toReserveResponse(existing), nil
	}

	// Fail fast when this user already has a reservation in flight for the
	// event; never block waiting for the current holder.
	lockKey := lock.ReservationKey(req.UserID, req.EventID)
	token, err := s.locker.Acquire(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		metrics.ReservationsTotal.WithLabelValues("lock_unavailable").Inc()
		return nil, err
	}
	defer func() {
		if err := s.locker.Release(ctx, lockKey, token); err != nil {
			logger.WithContext(ctx).Error("Failed to release reservation lock",
				"error", err, "key", lockKey)
		}
	}()

	event, err := s.stores.Events.GetByID(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil {
		return nil, apperr.ErrEventNotFound
	}
	if err := saleGate(event, time.Now()); err != nil {
		metrics.ReservationsTotal.WithLabelValues("not_on_sale").Inc()
		return nil, err
	}

	// Over-limit requests are rejected before any inventory is touched.
	held, err := s.stores.Purchases.Get(ctx, req.UserID, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase record: %w", err)
	}
	if held+count > event.PerUserLimit {
		metrics.ReservationsTotal.WithLabelValues("over_limit").Inc()
		return nil, apperr.ErrOverLimit
	}

	if err := s.reserveCounter(ctx, event, count); err != nil {
		return nil, err
	}

	order, duplicate, err := s.lockSeatsAndCreateOrder(ctx, req, event, seatIDs)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return toReserveResponse(order), nil
	}

	if event.AvailableSeats == count {
		// This reservation took the last seats; flipping the status is
		// best effort and guarded inside the store.
		if _, err := s.stores.Events.MarkSoldOut(ctx, req.EventID); err != nil {
			logger.WithContext(ctx).Warn("Failed to mark event sold out",
				"error", err, "event_id", req.EventID)
		}
	}

	s.publishCreated(ctx, order)
	metrics.ReservationsTotal.WithLabelValues("created").Inc()

	return toReserveResponse(order), nil
}

// reserveCounter runs the counter CAS with a bounded number of fresh-read
// retries. Exhausting retries surfaces as contention; a definitive shortage
// surfaces as sold out.
func (s *ReservationService) reserveCounter(ctx context.Context, event *models.Event, count int) error {
	version := event.Version
	available := event.AvailableSeats

	for attempt := 0; attempt <= s.cfg.CounterRetries; attempt++ {
		if available < count {
			metrics.ReservationsTotal.WithLabelValues("sold_out").Inc()
			return apperr.ErrSoldOut
		}

		ok, err := s.stores.Events.Reserve(ctx, event.ID, count, version)
		if err != nil {
			return fmt.Errorf("failed to reserve event counter: %w", err)
		}
		if ok {
			return nil
		}

		metrics.CounterCASRetries.Inc()

		fresh, err := s.stores.Events.GetByID(ctx, event.ID)
		if err != nil {
			return fmt.Errorf("failed to re-read event: %w", err)
		}
		if fresh == nil {
			return apperr.ErrEventNotFound
		}
		version = fresh.Version
		available = fresh.AvailableSeats
	}

	metrics.ReservationsTotal.WithLabelValues("contention").Inc()
	return apperr.ErrContention
}

// lockSeatsAndCreateOrder locks each target seat, then writes the order and
// its junction rows, then counts the reservation against the user's quota.
// Any failure unwinds everything done so far: seats first, counter second.
func (s *ReservationService) lockSeatsAndCreateOrder(ctx context.Context, req *models.ReserveSeatsRequest, event *models.Event, seatIDs []string) (order *models.Order, duplicate bool, err error) {
	count := len(seatIDs)

	orderID, err := s.stores.Orders.NextID(ctx)
	if err != nil {
		s.compensate(ctx, req.EventID, nil, count)
		return nil, false, fmt.Errorf("failed to allocate order id: %w", err)
	}

	expireAt := time.Now().Add(s.cfg.HoldDuration)

	var locked []string
	var orderSeats []models.OrderSeat
	var totalAmount int64

	for _, seatID := range seatIDs {
		seat, err := s.stores.Seats.GetByID(ctx, seatID)
		if err != nil {
			s.compensate(ctx, req.EventID, locked, count)
			return nil, false, fmt.Errorf("failed to get seat %s: %w", seatID, err)
		}
		if seat == nil || seat.EventID != req.EventID {
			s.compensate(ctx, req.EventID, locked, count)
			return nil, false, apperr.ErrSeatNotFound
		}

		ok, err := s.stores.Seats.Lock(ctx, seatID, req.UserID, orderID, expireAt, seat.Version)
		if err != nil {
			s.compensate(ctx, req.EventID, locked, count)
			return nil, false, fmt.Errorf("failed to lock seat %s: %w", seatID, err)
		}
		if !ok {
			// Another buyer won this seat; partial reservations are never
			// left outstanding.
			s.compensate(ctx, req.EventID, locked, count)
			metrics.ReservationsTotal.WithLabelValues("contention").Inc()
			return nil, false, apperr.ErrPartialReservation
		}

		locked = append(locked, seatID)
		totalAmount += seat.Price
		orderSeats = append(orderSeats, models.OrderSeat{
			OrderID:       orderID,
			SeatID:        seatID,
			EventID:       req.EventID,
			PriceSnapshot: seat.Price,
		})
	}

	order = &models.Order{
		ID:             orderID,
		OrderNo:        uuid.New().String(),
		EventID:        req.EventID,
		UserID:         req.UserID,
		SeatCount:      count,
		TotalAmount:    totalAmount,
		Status:         models.OrderPending,
		IdempotencyKey: req.IdempotencyKey,
		ExpireTime:     expireAt,
	}

	if err := s.stores.Orders.Create(ctx, order, orderSeats); err != nil {
		s.compensate(ctx, req.EventID, locked, count)

		if repository.IsUniqueViolation(err) {
			// A concurrent delivery of the same request won the insert.
			existing, lookupErr := s.stores.Orders.GetByIdempotencyKey(ctx, req.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				metrics.ReservationsTotal.WithLabelValues("duplicate").Inc()
				return existing, true, nil
			}
		}

		return nil, false, fmt.Errorf("failed to create order: %w", err)
	}

	ok, err := s.stores.Purchases.Increment(ctx, req.UserID, req.EventID, count, event.PerUserLimit)
	if err != nil || !ok {
		// Another instance consumed the quota between our check and here.
		// Unwind the whole reservation, order included.
		if released, rerr := s.stores.Seats.ReleaseBatch(ctx, locked); rerr == nil && released > 0 {
			if _, rerr := s.stores.Events.Release(ctx, req.EventID, released); rerr != nil {
				logger.WithContext(ctx).Error("Failed to release event counter during quota rollback",
					"error", rerr, "event_id", req.EventID)
			}
		}
		if _, merr := s.stores.Orders.MarkCancelled(ctx, orderID); merr != nil {
			logger.WithContext(ctx).Error("Failed to cancel order during quota rollback",
				"error", merr, "order_id", orderID)
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to increment purchase record: %w", err)
		}
		metrics.ReservationsTotal.WithLabelValues("over_limit").Inc()
		return nil, false, apperr.ErrOverLimit
	}

	return order, false, nil
}

// compensate unwinds a failed reservation attempt: already-held seats go
// back first, then the counter reservation is rolled back by the full
// requested count.
func (s *ReservationService) compensate(ctx context.Context, eventID int64, lockedSeatIDs []string, count int) {
	if len(lockedSeatIDs) > 0 {
		released, err := s.stores.Seats.ReleaseBatch(ctx, lockedSeatIDs)
		if err != nil {
			logger.WithContext(ctx).Error("Failed to release seats during compensation",
				"error", err, "event_id", eventID, "seats", len(lockedSeatIDs))
		} else {
			metrics.SeatsReleasedTotal.WithLabelValues("compensation").Add(float64(released))
		}
	}

	if _, err := s.stores.Events.Release(ctx, eventID, count); err != nil {
		logger.WithContext(ctx).Error("Failed to roll back event counter during compensation",
			"error", err, "event_id", eventID, "count", count)
	}
}

func (s *ReservationService) publishCreated(ctx context.Context, order *models.Order) {
	event := models.OrderCreatedEvent{
		OrderID:    order.ID,
		OrderNo:    order.OrderNo,
		EventID:    order.EventID,
		UserID:     order.UserID,
		SeatCount:  order.SeatCount,
		ExpireTime: order.ExpireTime,
		Timestamp:  time.Now(),
	}

	if err := s.publisher.Publish(models.SubjectOrderCreated, event); err != nil {
		logger.WithContext(ctx).Error("Failed to publish order created event",
			"error", err, "order_id", order.ID, "event_type", models.SubjectOrderCreated)
	}
}

func saleGate(event *models.Event, now time.Time) error {
	if event.Status == models.EventSoldOut {
		return apperr.ErrSoldOut
	}
	if event.Status != models.EventSelling {
		return apperr.ErrEventNotOnSale
	}
	if now.Before(event.SaleStart) || now.After(event.SaleEnd) {
		return apperr.ErrEventNotOnSale
	}
	return nil
}

func toReserveResponse(order *models.Order) *models.ReserveSeatsResponse {
	return &models.ReserveSeatsResponse{
		OrderID:     order.ID,
		OrderNo:     order.OrderNo,
		SeatCount:   order.SeatCount,
		TotalAmount: order.TotalAmount,
		Status:      order.Status,
		ExpireTime:  order.ExpireTime,
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
