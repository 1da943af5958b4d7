package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationsTotal counts reservation attempts by outcome:
	// created, duplicate, contention, sold_out, over_limit, lock_unavailable, error.
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstile_reservations_total",
		Help: "Reservation attempts by outcome",
	}, []string{"outcome"})

	// CounterCASRetries counts retries of the event-counter conditional update.
	CounterCASRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turnstile_counter_cas_retries_total",
		Help: "Event counter CAS retries",
	})

	// SeatsReleasedTotal counts seats returned to AVAILABLE by path:
	// compensation, cancel, sweep.
	SeatsReleasedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstile_seats_released_total",
		Help: "Seats released back to inventory by path",
	}, []string{"path"})

	// OrdersExpiredTotal counts orders timed out by the sweeper.
	OrdersExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turnstile_orders_expired_total",
		Help: "Pending orders expired by the sweeper",
	})

	// SweepDuration observes one full sweep pass.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "turnstile_sweep_duration_seconds",
		Help:    "Duration of one expiry sweep pass",
		Buckets: prometheus.DefBuckets,
	})

	// HTTPRequests counts API requests by route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turnstile_http_requests_total",
		Help: "HTTP requests by method, path and status",
	}, []string{"method", "path", "status"})
)
