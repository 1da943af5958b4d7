// Package apperr defines the sentinel errors surfaced by the reservation
// engine. CAS misses inside the stores are boolean results, not errors;
// these sentinels classify the outcomes the coordinator reports to callers.
package apperr

import "errors"

var (
	// ErrContention is returned after bounded retries of a conditional
	// update keep losing to concurrent writers.
	ErrContention = errors.New("lost to concurrent update")

	// ErrSoldOut is returned when the event has fewer available seats than
	// requested.
	ErrSoldOut = errors.New("not enough seats available")

	// ErrOverLimit is returned when a reservation would exceed the event's
	// per-user purchase limit.
	ErrOverLimit = errors.New("per-user purchase limit exceeded")

	// ErrLockUnavailable is returned when the per-user reservation lock
	// cannot be acquired. Transient; callers may retry.
	ErrLockUnavailable = errors.New("reservation lock unavailable")

	// ErrPartialReservation is returned when some seats of a multi-seat
	// request were taken by other buyers. Already-held seats are released
	// before this is surfaced.
	ErrPartialReservation = errors.New("one or more requested seats are unavailable")

	ErrEventNotFound  = errors.New("event not found")
	ErrEventNotOnSale = errors.New("event is not on sale")
	ErrOrderNotFound  = errors.New("order not found")
	ErrSeatNotFound   = errors.New("seat not found")
)

// Retryable reports whether the caller may immediately retry the request.
func Retryable(err error) bool {
	return errors.Is(err, ErrLockUnavailable)
}
