package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"

	"turnstile/internal/apperr"
	"turnstile/internal/config"
	"turnstile/internal/models"
)

func testReservationConfig() config.ReservationConfig {
	return config.ReservationConfig{
		LockTTL:        10 * time.Second,
		HoldDuration:   15 * time.Minute,
		CounterRetries: 3,
	}
}

// In-memory stores with the same conditional-update semantics as the SQL
// repositories: every mutation checks status/version under a mutex and
// reports a boolean, so the coordinator's contention handling is exercised
// for real.

type memEvents struct {
	mu     sync.Mutex
	events map[int64]*models.Event

	// reserveFailures forces the next N Reserve calls to miss, simulating
	// version races the single-process fakes cannot produce naturally.
	reserveFailures int
}

func newMemEvents() *memEvents {
	return &memEvents{events: make(map[int64]*models.Event)}
}

func (m *memEvents) put(e models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := e
	m.events[e.ID] = &cp
}

func (m *memEvents) get(id int64) models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.events[id]
}

func (m *memEvents) GetByID(_ context.Context, id int64) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *memEvents) Reserve(_ context.Context, eventID int64, count int, expectedVersion int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserveFailures > 0 {
		m.reserveFailures--
		return false, nil
	}
	e, ok := m.events[eventID]
	if !ok || e.Version != expectedVersion || e.AvailableSeats < count {
		return false, nil
	}
	e.AvailableSeats -= count
	e.LockedSeats += count
	e.Version++
	return true, nil
}

func (m *memEvents) Confirm(_ context.Context, eventID int64, count int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok || e.LockedSeats < count {
		return false, nil
	}
	e.LockedSeats -= count
	e.SoldSeats += count
	e.Version++
	return true, nil
}

func (m *memEvents) Release(_ context.Context, eventID int64, count int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok || e.LockedSeats < count {
		return false, nil
	}
	e.LockedSeats -= count
	e.AvailableSeats += count
	e.Version++
	return true, nil
}

func (m *memEvents) MarkSoldOut(_ context.Context, eventID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok || e.Status != models.EventSelling || e.AvailableSeats != 0 {
		return false, nil
	}
	e.Status = models.EventSoldOut
	return true, nil
}

func (m *memEvents) ReopenSelling(_ context.Context, eventID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok || e.Status != models.EventSoldOut || e.AvailableSeats == 0 {
		return false, nil
	}
	e.Status = models.EventSelling
	return true, nil
}

type memSeats struct {
	mu    sync.Mutex
	seats map[string]*models.Seat
}

func newMemSeats() *memSeats {
	return &memSeats{seats: make(map[string]*models.Seat)}
}

func (m *memSeats) put(s models.Seat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	m.seats[s.ID] = &cp
}

func (m *memSeats) get(id string) models.Seat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.seats[id]
}

func (m *memSeats) GetByID(_ context.Context, id string) (*models.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seats[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSeats) GetByOrderID(_ context.Context, orderID int64) ([]models.Seat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Seat
	for _, s := range m.seats {
		if s.HoldingOrderID != nil && *s.HoldingOrderID == orderID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSeats) Lock(_ context.Context, seatID string, userID, orderID int64, expireAt time.Time, expectedVersion int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seats[seatID]
	if !ok || s.Status != models.SeatAvailable || s.Version != expectedVersion {
		return false, nil
	}
	now := time.Now()
	s.Status = models.SeatLocked
	s.LockTime = &now
	s.LockExpireTime = &expireAt
	s.HoldingUserID = &userID
	s.HoldingOrderID = &orderID
	s.Version++
	return true, nil
}

func (m *memSeats) ConfirmSold(_ context.Context, seatID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seats[seatID]
	if !ok || s.Status != models.SeatLocked {
		return false, nil
	}
	s.Status = models.SeatSold
	s.Version++
	return true, nil
}

func (m *memSeats) release(s *models.Seat) {
	s.Status = models.SeatAvailable
	s.LockTime = nil
	s.LockExpireTime = nil
	s.HoldingUserID = nil
	s.HoldingOrderID = nil
	s.Version++
}

func (m *memSeats) Release(_ context.Context, seatID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seats[seatID]
	if !ok || s.Status != models.SeatLocked {
		return false, nil
	}
	m.release(s)
	return true, nil
}

func (m *memSeats) ReleaseBatch(_ context.Context, seatIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	released := 0
	for _, id := range seatIDs {
		s, ok := m.seats[id]
		if !ok || s.Status != models.SeatLocked {
			continue
		}
		m.release(s)
		released++
	}
	return released, nil
}

func (m *memSeats) ReleaseExpired(_ context.Context, now time.Time) (map[int64]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]int)
	for _, s := range m.seats {
		if s.Status == models.SeatLocked && s.LockExpireTime != nil && s.LockExpireTime.Before(now) {
			m.release(s)
			out[s.EventID]++
		}
	}
	return out, nil
}

type memOrders struct {
	mu     sync.Mutex
	seq    int64
	orders map[int64]*models.Order
	seats  map[int64][]models.OrderSeat
	byKey  map[string]int64
}

func newMemOrders() *memOrders {
	return &memOrders{
		orders: make(map[int64]*models.Order),
		seats:  make(map[int64][]models.OrderSeat),
		byKey:  make(map[string]int64),
	}
}

func (m *memOrders) get(id int64) models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.orders[id]
}

func (m *memOrders) setStatus(id int64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[id].Status = status
}

func (m *memOrders) NextID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *memOrders) Create(_ context.Context, order *models.Order, seats []models.OrderSeat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byKey[order.IdempotencyKey]; exists {
		return &pq.Error{Code: "23505", Constraint: "orders_idempotency_key_key"}
	}
	cp := *order
	m.orders[order.ID] = &cp
	m.seats[order.ID] = append([]models.OrderSeat(nil), seats...)
	m.byKey[order.IdempotencyKey] = order.ID
	return nil
}

func (m *memOrders) GetByID(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) GetByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[key]
	if !ok {
		return nil, nil
	}
	cp := *m.orders[id]
	return &cp, nil
}

func (m *memOrders) markIfPending(id int64, status string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != models.OrderPending {
		return false
	}
	o.Status = status
	return true
}

func (m *memOrders) MarkPaid(_ context.Context, orderID int64, payType string, payTime time.Time) (bool, error) {
	ok := m.markIfPending(orderID, models.OrderPaid)
	if ok {
		m.mu.Lock()
		o := m.orders[orderID]
		o.PayType = &payType
		o.PayTime = &payTime
		m.mu.Unlock()
	}
	return ok, nil
}

func (m *memOrders) MarkCancelled(_ context.Context, orderID int64) (bool, error) {
	return m.markIfPending(orderID, models.OrderCancelled), nil
}

func (m *memOrders) MarkTimeout(_ context.Context, orderID int64) (bool, error) {
	return m.markIfPending(orderID, models.OrderTimeout), nil
}

func (m *memOrders) FindExpiredPending(_ context.Context, now time.Time, limit int) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.Status == models.OrderPending && o.ExpireTime.Before(now) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpireTime.Before(out[j].ExpireTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memOrders) GetSeatIDs(_ context.Context, orderID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, os := range m.seats[orderID] {
		out = append(out, os.SeatID)
	}
	return out, nil
}

func (m *memOrders) DeleteSeats(_ context.Context, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seats, orderID)
	return nil
}

type memPurchases struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemPurchases() *memPurchases {
	return &memPurchases{counts: make(map[string]int)}
}

func purchaseKey(userID, eventID int64) string {
	return fmt.Sprintf("%d:%d", userID, eventID)
}

func (m *memPurchases) get(userID, eventID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[purchaseKey(userID, eventID)]
}

func (m *memPurchases) Get(_ context.Context, userID, eventID int64) (int, error) {
	return m.get(userID, eventID), nil
}

func (m *memPurchases) Increment(_ context.Context, userID, eventID int64, count, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := purchaseKey(userID, eventID)
	if m.counts[key]+count > limit {
		return false, nil
	}
	m.counts[key] += count
	return true, nil
}

func (m *memPurchases) Decrement(_ context.Context, userID, eventID int64, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := purchaseKey(userID, eventID)
	m.counts[key] -= count
	if m.counts[key] < 0 {
		m.counts[key] = 0
	}
	return nil
}

type memLocker struct {
	mu   sync.Mutex
	seq  int
	held map[string]string
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string)}
}

func (m *memLocker) Acquire(_ context.Context, key string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.held[key]; taken {
		return "", apperr.ErrLockUnavailable
	}
	m.seq++
	token := fmt.Sprintf("token-%d", m.seq)
	m.held[key] = token
	return token, nil
}

func (m *memLocker) Release(_ context.Context, key string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	return nil
}

type memPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (m *memPublisher) Publish(subject string, _ interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *memPublisher) published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subjects...)
}

// testEnv bundles the fakes behind one seeded reservation setup.
type testEnv struct {
	events    *memEvents
	seats     *memSeats
	orders    *memOrders
	purchases *memPurchases
	locker    *memLocker
	publisher *memPublisher
	services  *Services
}

func newTestEnv() *testEnv {
	env := &testEnv{
		events:    newMemEvents(),
		seats:     newMemSeats(),
		orders:    newMemOrders(),
		purchases: newMemPurchases(),
		locker:    newMemLocker(),
		publisher: &memPublisher{},
	}
	stores := Stores{
		Seats:     env.seats,
		Events:    env.events,
		Orders:    env.orders,
		Purchases: env.purchases,
	}
	env.services = NewServices(stores, env.locker, env.publisher, testReservationConfig())
	return env
}

// seedEvent creates a SELLING event with the given seats, all AVAILABLE.
// Seat IDs are "s1".."sN".
func (env *testEnv) seedEvent(eventID int64, seatCount, perUserLimit int) []string {
	env.events.put(models.Event{
		ID:             eventID,
		Title:          "test event",
		TotalSeats:     seatCount,
		AvailableSeats: seatCount,
		Status:         models.EventSelling,
		SaleStart:      time.Now().Add(-time.Hour),
		SaleEnd:        time.Now().Add(time.Hour),
		PerUserLimit:   perUserLimit,
		Version:        1,
	})

	ids := make([]string, 0, seatCount)
	for i := 1; i <= seatCount; i++ {
		id := fmt.Sprintf("s%d", i)
		env.seats.put(models.Seat{
			ID:      id,
			EventID: eventID,
			Zone:    "A",
			Row:     1,
			Number:  i,
			Price:   5000,
			Status:  models.SeatAvailable,
			Version: 1,
		})
		ids = append(ids, id)
	}
	return ids
}

// checkInvariant asserts available + locked + sold == total for the event.
func (env *testEnv) checkInvariant(eventID int64) (int, bool) {
	e := env.events.get(eventID)
	sum := e.AvailableSeats + e.LockedSeats + e.SoldSeats
	return sum, sum == e.TotalSeats
}
