// Package sweeper reconciles time-based expiry: pending orders whose hold
// window has passed get their seats, counters and quota back, then the order
// is marked TIMEOUT. Every step is a guarded conditional update, so the job
// is safe to re-run and to race against the payment callback.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"turnstile/internal/config"
	"turnstile/internal/metrics"
	"turnstile/internal/models"
	"turnstile/internal/service"
)

// Sweeper is the periodic expiry reconciliation job.
type Sweeper struct {
	stores    service.Stores
	publisher service.Publisher
	cfg       config.SweeperConfig
	ticker    *time.Ticker
	done      chan struct{}
}

func New(stores service.Stores, publisher service.Publisher, cfg config.SweeperConfig) *Sweeper {
	return &Sweeper{
		stores:    stores,
		publisher: publisher,
		cfg:       cfg,
		done:      make(chan struct{}),
	}
}

// Start begins the background job on the configured interval.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("Starting expiry sweeper", "interval", s.cfg.Interval, "batch_size", s.cfg.BatchSize)

	s.ticker = time.NewTicker(s.cfg.Interval)

	// Run an initial pass immediately
	go s.Sweep(ctx)

	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.Sweep(ctx)
			case <-s.done:
				slog.Info("Expiry sweeper stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the background job
func (s *Sweeper) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)
}

// Sweep runs one reconciliation pass. Errors are logged and retried on the
// next tick; every step no-ops on already-reconciled state, so a transient
// outage needs no manual repair.
func (s *Sweeper) Sweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	expired, err := s.stores.Orders.FindExpiredPending(ctx, start, s.cfg.BatchSize)
	if err != nil {
		slog.Error("Failed to find expired pending orders", "error", err)
		return
	}

	for i := range expired {
		if err := s.expireOrder(ctx, &expired[i]); err != nil {
			slog.Error("Failed to expire order",
				"error", err,
				"order_id", expired[i].ID,
				"event_id", expired[i].EventID)
		}
	}

	s.releaseOrphans(ctx, start)
}

// expireOrder times out one pending order. Seats are released before the
// order goes terminal, so a crash between the two leaves work the next pass
// finishes. The counter moves by the number of seats that actually
// transitioned, which makes a re-run for the same order a no-op.
func (s *Sweeper) expireOrder(ctx context.Context, order *models.Order) error {
	seatIDs, err := s.stores.Orders.GetSeatIDs(ctx, order.ID)
	if err != nil {
		return err
	}

	released, err := s.stores.Seats.ReleaseBatch(ctx, seatIDs)
	if err != nil {
		return err
	}

	if released > 0 {
		metrics.SeatsReleasedTotal.WithLabelValues("sweep").Add(float64(released))

		if _, err := s.stores.Events.Release(ctx, order.EventID, released); err != nil {
			return err
		}
	}

	ok, err := s.stores.Orders.MarkTimeout(ctx, order.ID)
	if err != nil {
		return err
	}
	if !ok {
		// A payment callback won the pending guard first.
		slog.Info("Order ended elsewhere before timeout",
			"order_id", order.ID, "seats_released", released)
		return nil
	}

	// Quota returns exactly once, keyed to winning the terminal transition.
	// The released count cannot drive it: the orphan pass may have freed
	// these seats already, and the order still owes its quota back.
	if err := s.stores.Purchases.Decrement(ctx, order.UserID, order.EventID, order.SeatCount); err != nil {
		slog.Error("Failed to return purchase quota for expired order",
			"error", err, "order_id", order.ID, "user_id", order.UserID)
	}

	metrics.OrdersExpiredTotal.Inc()

	if _, err := s.stores.Events.ReopenSelling(ctx, order.EventID); err != nil {
		slog.Warn("Failed to reopen selling", "error", err, "event_id", order.EventID)
	}

	expiredEvent := models.OrderExpiredEvent{
		OrderID:       order.ID,
		EventID:       order.EventID,
		UserID:        order.UserID,
		SeatsReleased: released,
		Timestamp:     time.Now(),
	}
	if err := s.publisher.Publish(models.SubjectOrderExpired, expiredEvent); err != nil {
		slog.Error("Failed to publish order expired event",
			"error", err, "order_id", order.ID, "event_type", models.SubjectOrderExpired)
	}

	if released > 0 {
		releasedEvent := models.SeatsReleasedEvent{
			EventID:   order.EventID,
			SeatIDs:   seatIDs,
			Timestamp: time.Now(),
		}
		if err := s.publisher.Publish(models.SubjectSeatsReleased, releasedEvent); err != nil {
			slog.Error("Failed to publish seats released event",
				"error", err, "order_id", order.ID, "event_type", models.SubjectSeatsReleased)
		}
	}

	slog.Info("Order expired",
		"order_id", order.ID,
		"event_id", order.EventID,
		"seats_released", released)

	return nil
}

// releaseOrphans frees LOCKED seats whose hold window passed but whose order
// never materialized (a coordinator crash between seat lock and order
// create), and restores each event's available counter by exactly the
// released amount. The cutoff lags a couple of ticks behind so seats held by
// orders still queued for the per-order path are not pulled out from under
// them.
func (s *Sweeper) releaseOrphans(ctx context.Context, now time.Time) {
	cutoff := now.Add(-2 * s.cfg.Interval)
	releasedByEvent, err := s.stores.Seats.ReleaseExpired(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to release expired seat locks", "error", err)
		return
	}

	for eventID, count := range releasedByEvent {
		metrics.SeatsReleasedTotal.WithLabelValues("sweep").Add(float64(count))

		if _, err := s.stores.Events.Release(ctx, eventID, count); err != nil {
			slog.Error("Failed to release event counter for orphaned seats",
				"error", err, "event_id", eventID, "count", count)
			continue
		}
		if _, err := s.stores.Events.ReopenSelling(ctx, eventID); err != nil {
			slog.Warn("Failed to reopen selling", "error", err, "event_id", eventID)
		}

		slog.Info("Released orphaned seat locks", "event_id", eventID, "count", count)
	}
}
