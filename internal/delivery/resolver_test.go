package delivery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zambezimeats/checkout/internal/checkout"
)

type fakeZoneStore struct {
	zones []checkout.DeliveryZone
}

func (s *fakeZoneStore) ListActiveZones(_ context.Context) ([]checkout.DeliveryZone, error) {
	var out []checkout.DeliveryZone
	for _, z := range s.zones {
		if z.IsActive {
			out = append(out, z)
		}
	}
	return out, nil
}

func (s *fakeZoneStore) GetZone(_ context.Context, id int) (checkout.DeliveryZone, error) {
	for _, z := range s.zones {
		if z.ID == id {
			return z, nil
		}
	}
	return checkout.DeliveryZone{}, ErrZoneNotFound
}

func intp(n int) *int { return &n }

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &fakeZoneStore{zones: []checkout.DeliveryZone{
		{ID: 1, Name: "Inner North", Suburbs: []string{"Brunswick", "Northcote"}, IsActive: true},
		{ID: 2, Name: "West", Suburbs: []string{"Footscray", "brunswick"}, IsActive: true},
		{ID: 3, Name: "Retired", Suburbs: []string{"Sunshine"}, IsActive: false},
	}}
	r := NewResolver(store)

	t.Run("matches case-insensitively", func(t *testing.T) {
		z, err := r.Resolve(ctx, "3070", "NORTHCOTE")
		require.NoError(t, err)
		require.Equal(t, 1, z.ID)
	})

	t.Run("overlapping suburbs resolve to lowest zone id", func(t *testing.T) {
		z, err := r.Resolve(ctx, "3056", "Brunswick")
		require.NoError(t, err)
		require.Equal(t, 1, z.ID)
	})

	t.Run("inactive zones never match", func(t *testing.T) {
		_, err := r.Resolve(ctx, "3020", "Sunshine")
		require.ErrorIs(t, err, checkout.ErrAddressNotDeliverable)
	})

	t.Run("unknown suburb is not deliverable", func(t *testing.T) {
		_, err := r.Resolve(ctx, "9999", "Atlantis")
		require.ErrorIs(t, err, checkout.ErrAddressNotDeliverable)
	})

	t.Run("blank suburb is not deliverable", func(t *testing.T) {
		_, err := r.Resolve(ctx, "3000", "  ")
		require.ErrorIs(t, err, checkout.ErrAddressNotDeliverable)
	})
}

func TestFeeFor(t *testing.T) {
	t.Parallel()

	zone := checkout.DeliveryZone{
		ID:                         1,
		DeliveryFeeCents:           1500,
		FreeDeliveryThresholdCents: intp(10000),
		EstimatedDays:              2,
	}

	t.Run("free at the threshold", func(t *testing.T) {
		q := FeeFor(zone, 10000)
		require.Zero(t, q.FeeCents)
		require.True(t, q.IsFree)
	})

	t.Run("full fee one cent under", func(t *testing.T) {
		q := FeeFor(zone, 9999)
		require.Equal(t, 1500, q.FeeCents)
		require.False(t, q.IsFree)
	})

	t.Run("no threshold means always the zone fee", func(t *testing.T) {
		q := FeeFor(checkout.DeliveryZone{DeliveryFeeCents: 900}, 1_000_000)
		require.Equal(t, 900, q.FeeCents)
		require.False(t, q.IsFree)
	})

	t.Run("estimate labels", func(t *testing.T) {
		require.Equal(t, "Same day", FeeFor(checkout.DeliveryZone{EstimatedDays: 0}, 0).Estimate)
		require.Equal(t, "Next day", FeeFor(checkout.DeliveryZone{EstimatedDays: 1}, 0).Estimate)
		require.Equal(t, "3 business days", FeeFor(checkout.DeliveryZone{EstimatedDays: 3}, 0).Estimate)
	})
}
