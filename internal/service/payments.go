package service

import (
	"context"
	"fmt"
	"time"

	"turnstile/internal/apperr"
	"turnstile/internal/logger"
	"turnstile/internal/metrics"
	"turnstile/internal/models"
)

// PaymentService applies payment-gateway results to orders. It races the
// expiry sweeper on the same rows; the PENDING guard on the order decides
// the winner and the loser takes no action.
type PaymentService struct {
	stores    Stores
	publisher Publisher
}

func NewPaymentService(stores Stores, publisher Publisher) *PaymentService {
	return &PaymentService{
		stores:    stores,
		publisher: publisher,
	}
}

// HandleNotification processes one payment-result callback. Duplicate
// deliveries are absorbed by the status guard and the LOCKED->SOLD seat
// transition, both of which no-op on a second run.
func (s *PaymentService) HandleNotification(ctx context.Context, payload *models.PaymentNotificationPayload) error {
	order, err := s.stores.Orders.GetByID(ctx, payload.OrderID)
	if err != nil {
		return fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return apperr.ErrOrderNotFound
	}

	if payload.Success {
		return s.confirm(ctx, order, payload)
	}
	return s.cancel(ctx, order, "payment failed")
}

// Cancel releases a pending order on user request.
func (s *PaymentService) Cancel(ctx context.Context, orderID int64) error {
	order, err := s.stores.Orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return apperr.ErrOrderNotFound
	}

	return s.cancel(ctx, order, "user cancellation")
}

func (s *PaymentService) confirm(ctx context.Context, order *models.Order, payload *models.PaymentNotificationPayload) error {
	payTime := payload.PayTime
	if payTime.IsZero() {
		payTime = time.Now()
	}

	ok, err := s.stores.Orders.MarkPaid(ctx, order.ID, payload.PayType, payTime)
	if err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}
	if !ok {
		// The sweeper (or a cancel) already ended this order.
		logger.WithContext(ctx).Info("Payment callback lost the pending guard, no action taken",
			"order_id", order.ID, "status", order.Status)
		return nil
	}

	seatIDs, err := s.stores.Orders.GetSeatIDs(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to get order seats: %w", err)
	}

	confirmed := 0
	for _, seatID := range seatIDs {
		ok, err := s.stores.Seats.ConfirmSold(ctx, seatID)
		if err != nil {
			logger.WithContext(ctx).Error("Failed to confirm seat sold",
				"error", err, "seat_id", seatID, "order_id", order.ID)
			continue
		}
		if ok {
			confirmed++
		}
	}
	if confirmed < len(seatIDs) {
		// A sweep released some of these seats between our markPaid and the
		// seat confirms. Needs operator reconciliation; the order stays PAID.
		logger.WithContext(ctx).Error("Paid order has unconfirmed seats",
			"order_id", order.ID, "confirmed", confirmed, "expected", len(seatIDs))
	}

	if confirmed > 0 {
		if _, err := s.stores.Events.Confirm(ctx, order.EventID, confirmed); err != nil {
			logger.WithContext(ctx).Error("Failed to confirm event counter",
				"error", err, "event_id", order.EventID, "count", confirmed)
		}
	}

	event := models.OrderPaidEvent{
		OrderID:   order.ID,
		EventID:   order.EventID,
		UserID:    order.UserID,
		PayType:   payload.PayType,
		PayTime:   payTime,
		Timestamp: time.Now(),
	}
	if err := s.publisher.Publish(models.SubjectOrderPaid, event); err != nil {
		logger.WithContext(ctx).Error("Failed to publish order paid event",
			"error", err, "order_id", order.ID, "event_type", models.SubjectOrderPaid)
	}

	return nil
}

// cancel returns a pending order's seats to inventory. Release order is
// seats, then counter, then quota, then the terminal order status, so a
// crash mid-way leaves a state the sweeper can finish reconciling.
func (s *PaymentService) cancel(ctx context.Context, order *models.Order, reason string) error {
	seatIDs, err := s.stores.Orders.GetSeatIDs(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to get order seats: %w", err)
	}

	released, err := s.stores.Seats.ReleaseBatch(ctx, seatIDs)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}

	if released > 0 {
		metrics.SeatsReleasedTotal.WithLabelValues("cancel").Add(float64(released))

		if _, err := s.stores.Events.Release(ctx, order.EventID, released); err != nil {
			return fmt.Errorf("failed to release event counter: %w", err)
		}
	}

	ok, err := s.stores.Orders.MarkCancelled(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to mark order cancelled: %w", err)
	}
	if !ok {
		if released > 0 {
			// Payment won the guard after we pulled its seats back; surface
			// loudly, this pairing needs reconciliation.
			logger.WithContext(ctx).Error("Cancelled seats for an order that ended elsewhere",
				"order_id", order.ID, "released", released)
		}
		return nil
	}

	// Quota returns exactly once, keyed to winning the terminal transition;
	// the sweeper's orphan pass may have released the seats before us.
	if err := s.stores.Purchases.Decrement(ctx, order.UserID, order.EventID, order.SeatCount); err != nil {
		logger.WithContext(ctx).Error("Failed to return purchase quota for cancelled order",
			"error", err, "order_id", order.ID, "user_id", order.UserID)
	}

	// Seats are all AVAILABLE again; the junction rows' order is terminal.
	if released == len(seatIDs) {
		if err := s.stores.Orders.DeleteSeats(ctx, order.ID); err != nil {
			logger.WithContext(ctx).Error("Failed to delete order seats",
				"error", err, "order_id", order.ID)
		}
	}

	if _, err := s.stores.Events.ReopenSelling(ctx, order.EventID); err != nil {
		logger.WithContext(ctx).Warn("Failed to reopen selling",
			"error", err, "event_id", order.EventID)
	}

	event := models.OrderCancelledEvent{
		OrderID:   order.ID,
		EventID:   order.EventID,
		UserID:    order.UserID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	if err := s.publisher.Publish(models.SubjectOrderCancelled, event); err != nil {
		logger.WithContext(ctx).Error("Failed to publish order cancelled event",
			"error", err, "order_id", order.ID, "event_type", models.SubjectOrderCancelled)
	}

	return nil
}
