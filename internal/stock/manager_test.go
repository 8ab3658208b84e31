package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/zambezimeats/checkout/internal/checkout"
	"github.com/zambezimeats/checkout/internal/clock"
)

type fakeStore struct {
	products     map[string]*checkout.Product
	reservations map[string]*checkout.Reservation
	failReserve  error
}

func resKey(productID, orderID string) string { return productID + "|" + orderID }

func newFakeStore(products ...checkout.Product) *fakeStore {
	s := &fakeStore{
		products:     map[string]*checkout.Product{},
		reservations: map[string]*checkout.Reservation{},
	}
	for i := range products {
		p := products[i]
		s.products[p.ID] = &p
	}
	return s
}

func (s *fakeStore) GetProduct(_ context.Context, id string) (checkout.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return checkout.Product{}, checkout.ErrProductNotFound
	}
	return *p, nil
}

func (s *fakeStore) Reserve(_ context.Context, res checkout.Reservation) (bool, error) {
	if s.failReserve != nil {
		return false, s.failReserve
	}
	p, ok := s.products[res.ProductID]
	if !ok || p.StockCount == nil || *p.StockCount < res.Quantity {
		return false, nil
	}
	if _, exists := s.reservations[resKey(res.ProductID, res.OrderID)]; exists {
		return false, nil
	}
	*p.StockCount -= res.Quantity
	r := res
	s.reservations[resKey(res.ProductID, res.OrderID)] = &r
	return true, nil
}

func (s *fakeStore) Release(_ context.Context, productID, orderID string) (*checkout.Reservation, error) {
	r, ok := s.reservations[resKey(productID, orderID)]
	if !ok || r.Status != checkout.ReservationReserved {
		return nil, nil
	}
	if p := s.products[productID]; p != nil && p.StockCount != nil {
		*p.StockCount += r.Quantity
	}
	r.Status = checkout.ReservationReleased
	return r, nil
}

func (s *fakeStore) Confirm(_ context.Context, productID, orderID string) (*checkout.Reservation, error) {
	r, ok := s.reservations[resKey(productID, orderID)]
	if !ok || r.Status != checkout.ReservationReserved {
		return nil, nil
	}
	r.Status = checkout.ReservationConfirmed
	return r, nil
}

func (s *fakeStore) ListActiveByOrder(_ context.Context, orderID string) ([]checkout.Reservation, error) {
	var out []checkout.Reservation
	for _, r := range s.reservations {
		if r.OrderID == orderID && r.Status == checkout.ReservationReserved {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) ListExpired(_ context.Context, now time.Time, limit int) ([]checkout.Reservation, error) {
	var out []checkout.Reservation
	for _, r := range s.reservations {
		if r.Status == checkout.ReservationReserved && !r.ExpiresAt.After(now) {
			out = append(out, *r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) stock(id string) int { return *s.products[id].StockCount }

type fakeCache struct {
	entries map[string]checkout.Reservation
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]checkout.Reservation{}} }

func (c *fakeCache) PutReservation(_ context.Context, res checkout.Reservation) error {
	c.entries[resKey(res.ProductID, res.OrderID)] = res
	return nil
}

func (c *fakeCache) DeleteReservation(_ context.Context, productID, orderID string) error {
	delete(c.entries, resKey(productID, orderID))
	return nil
}

func intp(n int) *int { return &n }

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestManager_Reserve(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("decrements stock and records expiry", func(t *testing.T) {
		store := newFakeStore(checkout.Product{ID: "p1", Name: "Scotch Fillet", StockCount: intp(10)})
		cache := newFakeCache()
		m := NewManager(store, cache, clock.NewFixed(now), testLogger())

		require.True(t, m.Reserve(ctx, "p1", 4, "o1"))
		require.Equal(t, 6, store.stock("p1"))

		entry, ok := cache.entries[resKey("p1", "o1")]
		require.True(t, ok)
		require.Equal(t, now.Add(DefaultTTL), entry.ExpiresAt)
		require.Equal(t, 4, entry.Quantity)
	})

	t.Run("fails when stock is short", func(t *testing.T) {
		store := newFakeStore(checkout.Product{ID: "p1", StockCount: intp(3)})
		m := NewManager(store, newFakeCache(), clock.NewFixed(now), testLogger())

		require.False(t, m.Reserve(ctx, "p1", 4, "o1"))
		require.Equal(t, 3, store.stock("p1"))
	})

	t.Run("untracked product succeeds without reservation", func(t *testing.T) {
		store := newFakeStore(checkout.Product{ID: "p1", StockCount: nil})
		cache := newFakeCache()
		m := NewManager(store, cache, clock.NewFixed(now), testLogger())

		require.True(t, m.Reserve(ctx, "p1", 1000, "o1"))
		require.Empty(t, store.reservations)
		require.Empty(t, cache.entries)
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		store := newFakeStore(checkout.Product{ID: "p1", StockCount: intp(10)})
		m := NewManager(store, newFakeCache(), clock.NewFixed(now), testLogger())

		require.False(t, m.Reserve(ctx, "p1", 0, "o1"))
		require.False(t, m.Reserve(ctx, "p1", -2, "o1"))
	})

	t.Run("persistence error reported as false, not raised", func(t *testing.T) {
		store := newFakeStore(checkout.Product{ID: "p1", StockCount: intp(10)})
		store.failReserve = errors.New("connection reset")
		m := NewManager(store, newFakeCache(), clock.NewFixed(now), testLogger())

		require.False(t, m.Reserve(ctx, "p1", 1, "o1"))
	})

	t.Run("custom TTL applies", func(t *testing.T) {
		store := newFakeStore(checkout.Product{ID: "p1", StockCount: intp(5)})
		cache := newFakeCache()
		m := NewManager(store, cache, clock.NewFixed(now), testLogger(), WithTTL(5*time.Minute))

		require.True(t, m.Reserve(ctx, "p1", 1, "o1"))
		require.Equal(t, now.Add(5*time.Minute), cache.entries[resKey("p1", "o1")].ExpiresAt)
	})
}

func TestManager_ReleaseAndConfirm(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("release restores stock exactly once", func(t *testing.T) {
		store := newFakeStore(checkout.Product{ID: "p1", StockCount: intp(10)})
		m := NewManager(store, newFakeCache(), clock.NewFixed(now), testLogger())

		require.True(t, m.Reserve(ctx, "p1", 5, "o1"))
		require.Equal(t, 5, store.stock("p1"))

		require.True(t, m.Release(ctx, "p1", "o1"))
		require.Equal(t, 10, store.stock("p1"))

		// Second release observes "not found" and must not double-increment.
		require.False(t, m.Release(ctx, "p1", "o1"))
		require.Equal(t, 10, store.stock("p1"))
	})

	t.Run("confirm keeps the decrement and is idempotent", func(t *testing.T) {
		store := newFakeStore(checkout.Product{ID: "p1", StockCount: intp(10)})
		m := NewManager(store, newFakeCache(), clock.NewFixed(now), testLogger())

		require.True(t, m.Reserve(ctx, "p1", 3, "o1"))
		require.True(t, m.Confirm(ctx, "p1", "o1"))
		require.Equal(t, 7, store.stock("p1"))

		// Entry absent now: treated as already confirmed.
		require.True(t, m.Confirm(ctx, "p1", "o1"))
		require.Equal(t, 7, store.stock("p1"))
	})

	t.Run("confirm after release is benign", func(t *testing.T) {
		store := newFakeStore(checkout.Product{ID: "p1", StockCount: intp(10)})
		m := NewManager(store, newFakeCache(), clock.NewFixed(now), testLogger())

		require.True(t, m.Reserve(ctx, "p1", 2, "o1"))
		require.True(t, m.Release(ctx, "p1", "o1"))

		require.True(t, m.Confirm(ctx, "p1", "o1"))
		require.Equal(t, 10, store.stock("p1"))
	})

	t.Run("release after confirm is a no-op returning false", func(t *testing.T) {
		store := newFakeStore(checkout.Product{ID: "p1", StockCount: intp(10)})
		m := NewManager(store, newFakeCache(), clock.NewFixed(now), testLogger())

		require.True(t, m.Reserve(ctx, "p1", 2, "o1"))
		require.True(t, m.Confirm(ctx, "p1", "o1"))

		require.False(t, m.Release(ctx, "p1", "o1"))
		require.Equal(t, 8, store.stock("p1"))
	})
}

func TestManager_AvailableStock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore(
		checkout.Product{ID: "tracked", StockCount: intp(7)},
		checkout.Product{ID: "untracked", StockCount: nil},
	)
	m := NewManager(store, newFakeCache(), clock.NewFixed(now), testLogger())

	avail, err := m.AvailableStock(ctx, "tracked")
	require.NoError(t, err)
	require.Equal(t, 7, avail)

	avail, err = m.AvailableStock(ctx, "untracked")
	require.NoError(t, err)
	require.Equal(t, UnlimitedStock, avail)

	_, err = m.AvailableStock(ctx, "missing")
	require.ErrorIs(t, err, checkout.ErrProductNotFound)

	require.True(t, m.HasStock(ctx, "tracked", 7))
	require.False(t, m.HasStock(ctx, "tracked", 8))
	require.True(t, m.HasStock(ctx, "untracked", 1_000_000))
	require.False(t, m.HasStock(ctx, "missing", 1))
}

// Scenario: stock=10, o1 takes it all, o2 is refused, releasing o1 restores.
func TestManager_ContendedProduct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore(checkout.Product{ID: "p1", StockCount: intp(10)})
	m := NewManager(store, newFakeCache(), clock.NewFixed(now), testLogger())

	require.True(t, m.Reserve(ctx, "p1", 10, "o1"))
	require.Equal(t, 0, store.stock("p1"))

	require.False(t, m.Reserve(ctx, "p1", 1, "o2"))

	require.True(t, m.Release(ctx, "p1", "o1"))
	require.Equal(t, 10, store.stock("p1"))
}

func TestManager_OrderWideOps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	t.Run("ReleaseOrder frees every held item", func(t *testing.T) {
		store := newFakeStore(
			checkout.Product{ID: "p1", StockCount: intp(5)},
			checkout.Product{ID: "p2", StockCount: intp(5)},
		)
		m := NewManager(store, newFakeCache(), clock.NewFixed(now), testLogger())

		require.True(t, m.Reserve(ctx, "p1", 2, "o1"))
		require.True(t, m.Reserve(ctx, "p2", 3, "o1"))

		require.Equal(t, 2, m.ReleaseOrder(ctx, "o1"))
		require.Equal(t, 5, store.stock("p1"))
		require.Equal(t, 5, store.stock("p2"))
	})

	t.Run("ConfirmOrder keeps every decrement", func(t *testing.T) {
		store := newFakeStore(
			checkout.Product{ID: "p1", StockCount: intp(5)},
			checkout.Product{ID: "p2", StockCount: intp(5)},
		)
		m := NewManager(store, newFakeCache(), clock.NewFixed(now), testLogger())

		require.True(t, m.Reserve(ctx, "p1", 2, "o1"))
		require.True(t, m.Reserve(ctx, "p2", 3, "o1"))

		require.Equal(t, 2, m.ConfirmOrder(ctx, "o1"))
		require.Equal(t, 3, store.stock("p1"))
		require.Equal(t, 2, store.stock("p2"))
		require.Equal(t, 0, m.ReleaseOrder(ctx, "o1"))
	})
}
