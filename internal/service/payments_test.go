package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnstile/internal/apperr"
	"turnstile/internal/models"
)

// reserveOrder drives a real reservation through the coordinator so payment
// tests start from the exact state the engine produces.
func reserveOrder(t *testing.T, env *testEnv, userID int64, seatIDs []string, key string) *models.ReserveSeatsResponse {
	t.Helper()
	resp, err := env.services.Reservations.Reserve(context.Background(),
		reserveRequest(userID, 1, seatIDs, key))
	require.NoError(t, err)
	return resp
}

func successPayload(orderID int64) *models.PaymentNotificationPayload {
	return &models.PaymentNotificationPayload{
		OrderID: orderID,
		PayType: "card",
		PayTime: time.Now(),
		Success: true,
	}
}

func TestPaymentSuccessConfirmsOrder(t *testing.T) {
	env := newTestEnv()
	seatIDs := env.seedEvent(1, 10, 4)
	resp := reserveOrder(t, env, 100, seatIDs[:2], "key-1")

	err := env.services.Payments.HandleNotification(context.Background(), successPayload(resp.OrderID))
	require.NoError(t, err)

	order := env.orders.get(resp.OrderID)
	assert.Equal(t, models.OrderPaid, order.Status)
	require.NotNil(t, order.PayType)
	assert.Equal(t, "card", *order.PayType)
	require.NotNil(t, order.PayTime)

	for _, id := range seatIDs[:2] {
		assert.Equal(t, models.SeatSold, env.seats.get(id).Status)
	}

	event := env.events.get(1)
	assert.Equal(t, 8, event.AvailableSeats)
	assert.Equal(t, 0, event.LockedSeats)
	assert.Equal(t, 2, event.SoldSeats)

	// The quota keeps counting sold tickets.
	assert.Equal(t, 2, env.purchases.get(100, 1))
	assert.Contains(t, env.publisher.published(), models.SubjectOrderPaid)

	sum, ok := env.checkInvariant(1)
	assert.True(t, ok, "counter invariant broken: sum=%d", sum)
}

func TestPaymentFailureCancelsOrder(t *testing.T) {
	env := newTestEnv()
	seatIDs := env.seedEvent(1, 10, 4)
	resp := reserveOrder(t, env, 100, seatIDs[:2], "key-1")

	payload := successPayload(resp.OrderID)
	payload.Success = false

	err := env.services.Payments.HandleNotification(context.Background(), payload)
	require.NoError(t, err)

	order := env.orders.get(resp.OrderID)
	assert.Equal(t, models.OrderCancelled, order.Status)

	for _, id := range seatIDs[:2] {
		seat := env.seats.get(id)
		assert.Equal(t, models.SeatAvailable, seat.Status)
		assert.Nil(t, seat.HoldingOrderID)
	}

	event := env.events.get(1)
	assert.Equal(t, 10, event.AvailableSeats)
	assert.Equal(t, 0, event.LockedSeats)
	assert.Equal(t, 0, env.purchases.get(100, 1))
	assert.Contains(t, env.publisher.published(), models.SubjectOrderCancelled)

	// Fully released orders drop their seat links.
	ids, err := env.orders.GetSeatIDs(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPaymentAfterTimeoutIsNoOp(t *testing.T) {
	env := newTestEnv()
	seatIDs := env.seedEvent(1, 10, 4)
	resp := reserveOrder(t, env, 100, seatIDs[:1], "key-1")

	// Sweeper got there first: seats released, order TIMEOUT.
	_, err := env.seats.ReleaseBatch(context.Background(), seatIDs[:1])
	require.NoError(t, err)
	_, err = env.events.Release(context.Background(), 1, 1)
	require.NoError(t, err)
	require.NoError(t, env.purchases.Decrement(context.Background(), 100, 1, 1))
	env.orders.setStatus(resp.OrderID, models.OrderTimeout)

	err = env.services.Payments.HandleNotification(context.Background(), successPayload(resp.OrderID))
	require.NoError(t, err)

	// The late callback must not resurrect anything.
	order := env.orders.get(resp.OrderID)
	assert.Equal(t, models.OrderTimeout, order.Status)
	assert.Equal(t, models.SeatAvailable, env.seats.get(seatIDs[0]).Status)

	event := env.events.get(1)
	assert.Equal(t, 10, event.AvailableSeats)
	assert.Equal(t, 0, event.SoldSeats)
}

func TestDuplicateSuccessCallback(t *testing.T) {
	env := newTestEnv()
	seatIDs := env.seedEvent(1, 10, 4)
	resp := reserveOrder(t, env, 100, seatIDs[:1], "key-1")

	require.NoError(t, env.services.Payments.HandleNotification(context.Background(), successPayload(resp.OrderID)))
	require.NoError(t, env.services.Payments.HandleNotification(context.Background(), successPayload(resp.OrderID)))

	event := env.events.get(1)
	assert.Equal(t, 1, event.SoldSeats)
	assert.Equal(t, 0, event.LockedSeats)

	sum, ok := env.checkInvariant(1)
	assert.True(t, ok, "counter invariant broken: sum=%d", sum)
}

func TestCancelPendingOrder(t *testing.T) {
	env := newTestEnv()
	seatIDs := env.seedEvent(1, 10, 4)
	resp := reserveOrder(t, env, 100, seatIDs[:2], "key-1")

	require.NoError(t, env.services.Payments.Cancel(context.Background(), resp.OrderID))

	order := env.orders.get(resp.OrderID)
	assert.Equal(t, models.OrderCancelled, order.Status)

	event := env.events.get(1)
	assert.Equal(t, 10, event.AvailableSeats)
	assert.Equal(t, 0, env.purchases.get(100, 1))
}

func TestCancelAfterOrphanReleaseReturnsQuota(t *testing.T) {
	env := newTestEnv()
	seatIDs := env.seedEvent(1, 10, 4)
	resp := reserveOrder(t, env, 100, seatIDs[:1], "key-1")

	// A sweep's orphan pass already freed the seat and restored the counter;
	// the order itself is still PENDING.
	released, err := env.seats.ReleaseBatch(context.Background(), seatIDs[:1])
	require.NoError(t, err)
	require.Equal(t, 1, released)
	_, err = env.events.Release(context.Background(), 1, 1)
	require.NoError(t, err)

	require.NoError(t, env.services.Payments.Cancel(context.Background(), resp.OrderID))

	order := env.orders.get(resp.OrderID)
	assert.Equal(t, models.OrderCancelled, order.Status)

	// Nothing left to release per-order, but the quota still comes back.
	assert.Equal(t, 0, env.purchases.get(100, 1))

	event := env.events.get(1)
	assert.Equal(t, 10, event.AvailableSeats)
	assert.Equal(t, 0, event.LockedSeats)

	sum, ok := env.checkInvariant(1)
	assert.True(t, ok, "counter invariant broken: sum=%d", sum)
}

func TestCancelReopensSoldOutEvent(t *testing.T) {
	env := newTestEnv()
	seatIDs := env.seedEvent(1, 2, 4)
	resp := reserveOrder(t, env, 100, seatIDs, "key-1")

	require.Equal(t, models.EventSoldOut, env.events.get(1).Status)

	require.NoError(t, env.services.Payments.Cancel(context.Background(), resp.OrderID))

	event := env.events.get(1)
	assert.Equal(t, models.EventSelling, event.Status)
	assert.Equal(t, 2, event.AvailableSeats)
}

func TestCancelUnknownOrder(t *testing.T) {
	env := newTestEnv()

	err := env.services.Payments.Cancel(context.Background(), 42)
	require.ErrorIs(t, err, apperr.ErrOrderNotFound)
}

func TestPaymentUnknownOrder(t *testing.T) {
	env := newTestEnv()

	err := env.services.Payments.HandleNotification(context.Background(), successPayload(42))
	require.ErrorIs(t, err, apperr.ErrOrderNotFound)
}
