package stock

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zambezimeats/checkout/internal/checkout"
	"github.com/zambezimeats/checkout/internal/clock"
)

// Store is the durable side of reservation accounting. Reserve and Release
// must each run their stock mutation and reservation bookkeeping in a single
// transaction.
type Store interface {
	GetProduct(ctx context.Context, productID string) (checkout.Product, error)
	// Reserve atomically decrements tracked stock and inserts the
	// reservation row. Returns false when stock is insufficient or an
	// active reservation for the pair already exists.
	Reserve(ctx context.Context, res checkout.Reservation) (bool, error)
	// Release restores stock and marks the reservation released. Returns
	// nil when no active reservation exists for the pair.
	Release(ctx context.Context, productID, orderID string) (*checkout.Reservation, error)
	// Confirm marks the reservation confirmed without touching stock.
	// Returns nil when no active reservation exists for the pair.
	Confirm(ctx context.Context, productID, orderID string) (*checkout.Reservation, error)
	ListActiveByOrder(ctx context.Context, orderID string) ([]checkout.Reservation, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]checkout.Reservation, error)
}

// Cache mirrors reservation entries into the expiring key-value store. It is
// advisory: cache failures never fail an operation.
type Cache interface {
	PutReservation(ctx context.Context, res checkout.Reservation) error
	DeleteReservation(ctx context.Context, productID, orderID string) error
}

const DefaultTTL = 15 * time.Minute

// UnlimitedStock is reported for products without stock tracking.
const UnlimitedStock = math.MaxInt32

// Manager holds inventory for candidate orders for a bounded time. All stock
// mutation goes through here; no other code path touches product stock.
type Manager struct {
	store Store
	cache Cache
	clock clock.Clock
	log   logrus.FieldLogger
	ttl   time.Duration
}

type Option func(*Manager)

// WithTTL overrides the default 15 minute reservation window.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

func NewManager(store Store, cache Cache, clk clock.Clock, log logrus.FieldLogger, opts ...Option) *Manager {
	m := &Manager{store: store, cache: cache, clock: clk, log: log, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reserve holds quantity for an order. Untracked products succeed without a
// reservation. Persistence errors are logged and reported as false, never
// raised.
func (m *Manager) Reserve(ctx context.Context, productID string, quantity int, orderID string) bool {
	if quantity <= 0 {
		return false
	}

	p, err := m.store.GetProduct(ctx, productID)
	if err != nil {
		m.logErr(err, productID, orderID, quantity, "reserve: load product")
		return false
	}
	if !p.Tracked() {
		return true
	}

	now := m.clock.Now()
	res := checkout.Reservation{
		ProductID: productID,
		OrderID:   orderID,
		Quantity:  quantity,
		Status:    checkout.ReservationReserved,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}

	ok, err := m.store.Reserve(ctx, res)
	if err != nil {
		m.logErr(err, productID, orderID, quantity, "reserve")
		return false
	}
	if !ok {
		return false
	}

	if err := m.cache.PutReservation(ctx, res); err != nil {
		m.logErr(err, productID, orderID, quantity, "reserve: cache put")
	}
	m.log.WithFields(logrus.Fields{
		"product_id": productID,
		"order_id":   orderID,
		"quantity":   quantity,
		"expires_at": res.ExpiresAt,
	}).Info("stock reserved")
	return true
}

// Release undoes a reservation, restoring held stock. A second call for the
// same pair finds no active reservation and returns false; that is the
// double-release guard.
func (m *Manager) Release(ctx context.Context, productID, orderID string) bool {
	res, err := m.store.Release(ctx, productID, orderID)
	if err != nil {
		m.logErr(err, productID, orderID, 0, "release")
		return false
	}
	if res == nil {
		return false
	}

	if err := m.cache.DeleteReservation(ctx, productID, orderID); err != nil {
		m.logErr(err, productID, orderID, res.Quantity, "release: cache delete")
	}
	m.log.WithFields(logrus.Fields{
		"product_id": productID,
		"order_id":   orderID,
		"quantity":   res.Quantity,
	}).Info("stock released")
	return true
}

// Confirm makes the reservation's decrement permanent. An absent reservation
// means already confirmed or expired; that is idempotent success.
func (m *Manager) Confirm(ctx context.Context, productID, orderID string) bool {
	res, err := m.store.Confirm(ctx, productID, orderID)
	if err != nil {
		m.logErr(err, productID, orderID, 0, "confirm")
		return false
	}
	if res == nil {
		return true
	}

	if err := m.cache.DeleteReservation(ctx, productID, orderID); err != nil {
		m.logErr(err, productID, orderID, res.Quantity, "confirm: cache delete")
	}
	m.log.WithFields(logrus.Fields{
		"product_id": productID,
		"order_id":   orderID,
		"quantity":   res.Quantity,
	}).Info("reservation confirmed")
	return true
}

// ReleaseOrder releases every still-held reservation for the order.
// Used by cancellation.
func (m *Manager) ReleaseOrder(ctx context.Context, orderID string) int {
	return m.forEachActive(ctx, orderID, m.Release)
}

// ConfirmOrder confirms every still-held reservation for the order.
// Used once payment succeeds.
func (m *Manager) ConfirmOrder(ctx context.Context, orderID string) int {
	return m.forEachActive(ctx, orderID, m.Confirm)
}

func (m *Manager) forEachActive(ctx context.Context, orderID string, fn func(context.Context, string, string) bool) int {
	held, err := m.store.ListActiveByOrder(ctx, orderID)
	if err != nil {
		m.logErr(err, "", orderID, 0, "list active reservations")
		return 0
	}
	n := 0
	for _, res := range held {
		if fn(ctx, res.ProductID, orderID) {
			n++
		}
	}
	return n
}

// AvailableStock returns UnlimitedStock for untracked products, else the
// non-negative stock count.
func (m *Manager) AvailableStock(ctx context.Context, productID string) (int, error) {
	p, err := m.store.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	if !p.Tracked() {
		return UnlimitedStock, nil
	}
	if *p.StockCount < 0 {
		return 0, nil
	}
	return *p.StockCount, nil
}

func (m *Manager) HasStock(ctx context.Context, productID string, quantity int) bool {
	avail, err := m.AvailableStock(ctx, productID)
	if err != nil {
		m.logErr(err, productID, "", quantity, "has stock")
		return false
	}
	return avail >= quantity
}

func (m *Manager) logErr(err error, productID, orderID string, qty int, op string) {
	m.log.WithFields(logrus.Fields{
		"product_id": productID,
		"order_id":   orderID,
		"quantity":   qty,
	}).WithError(err).Errorf("stock: %s failed", op)
}
