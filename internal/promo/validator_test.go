package promo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zambezimeats/checkout/internal/checkout"
	"github.com/zambezimeats/checkout/internal/clock"
)

type fakePromoStore struct {
	promos map[string]*checkout.Promotion
}

func (s *fakePromoStore) GetByCode(_ context.Context, code string) (*checkout.Promotion, error) {
	p, ok := s.promos[strings.ToLower(code)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakePromoStore) ConsumeUse(_ context.Context, code string) (bool, error) {
	p, ok := s.promos[strings.ToLower(code)]
	if !ok {
		return false, nil
	}
	if p.MaxUses != nil && p.UsesCount >= *p.MaxUses {
		return false, nil
	}
	p.UsesCount++
	return true, nil
}

func intp(n int) *int { return &n }

func reasonOf(t *testing.T, err error) checkout.PromoReason {
	t.Helper()
	var pe *checkout.PromoInvalidError
	require.ErrorAs(t, err, &pe)
	return pe.Reason
}

func TestValidator_Validate(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	save10 := &checkout.Promotion{
		Code: "SAVE10", Type: checkout.PromoPercentage, Value: 10,
		MinOrderCents: 5000, MaxUses: intp(100), UsesCount: 10,
		StartDate: now.AddDate(0, -1, 0), EndDate: now.AddDate(0, 1, 0), IsActive: true,
	}
	store := &fakePromoStore{promos: map[string]*checkout.Promotion{"save10": save10}}
	v := NewValidator(store, clock.NewFixed(now))

	t.Run("percentage discount", func(t *testing.T) {
		d, err := v.Validate(ctx, "SAVE10", 10000)
		require.NoError(t, err)
		require.Equal(t, 1000, d)
	})

	t.Run("lookup is case-insensitive", func(t *testing.T) {
		d, err := v.Validate(ctx, "save10", 10000)
		require.NoError(t, err)
		require.Equal(t, 1000, d)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := v.Validate(ctx, "NOPE", 10000)
		require.Equal(t, checkout.PromoNotFound, reasonOf(t, err))
	})

	t.Run("inactive beats the date check", func(t *testing.T) {
		p := *save10
		p.IsActive = false
		p.EndDate = now.AddDate(0, -1, 0) // also expired; inactive must win
		s := &fakePromoStore{promos: map[string]*checkout.Promotion{"save10": &p}}
		_, err := NewValidator(s, clock.NewFixed(now)).Validate(ctx, "SAVE10", 10000)
		require.Equal(t, checkout.PromoInactive, reasonOf(t, err))
	})

	t.Run("expired window", func(t *testing.T) {
		p := *save10
		p.EndDate = now.Add(-time.Hour)
		s := &fakePromoStore{promos: map[string]*checkout.Promotion{"save10": &p}}
		_, err := NewValidator(s, clock.NewFixed(now)).Validate(ctx, "SAVE10", 10000)
		require.Equal(t, checkout.PromoExpired, reasonOf(t, err))
	})

	t.Run("not started yet", func(t *testing.T) {
		p := *save10
		p.StartDate = now.Add(time.Hour)
		s := &fakePromoStore{promos: map[string]*checkout.Promotion{"save10": &p}}
		_, err := NewValidator(s, clock.NewFixed(now)).Validate(ctx, "SAVE10", 10000)
		require.Equal(t, checkout.PromoExpired, reasonOf(t, err))
	})

	t.Run("below minimum order", func(t *testing.T) {
		_, err := v.Validate(ctx, "SAVE10", 4999)
		require.Equal(t, checkout.PromoBelowMinimum, reasonOf(t, err))
	})

	// SAVE10 with uses exhausted against a qualifying subtotal.
	t.Run("usage cap exhausted", func(t *testing.T) {
		p := *save10
		p.UsesCount = 100
		s := &fakePromoStore{promos: map[string]*checkout.Promotion{"save10": &p}}
		_, err := NewValidator(s, clock.NewFixed(now)).Validate(ctx, "SAVE10", 10000)
		require.Equal(t, checkout.PromoExhausted, reasonOf(t, err))
	})

	t.Run("nil max_uses skips the cap", func(t *testing.T) {
		p := *save10
		p.MaxUses = nil
		p.UsesCount = 1 << 20
		s := &fakePromoStore{promos: map[string]*checkout.Promotion{"save10": &p}}
		_, err := NewValidator(s, clock.NewFixed(now)).Validate(ctx, "SAVE10", 10000)
		require.NoError(t, err)
	})
}

func TestDiscount_FixedClamp(t *testing.T) {
	t.Parallel()

	fixed := checkout.Promotion{Type: checkout.PromoFixed, Value: 2000}
	require.Equal(t, 2000, Discount(fixed, 10000))
	// A fixed discount never exceeds the subtotal it discounts.
	require.Equal(t, 1500, Discount(fixed, 1500))
	require.Equal(t, 0, Discount(fixed, 0))

	pct := checkout.Promotion{Type: checkout.PromoPercentage, Value: 25}
	require.Equal(t, 2500, Discount(pct, 10000))
}

func TestValidator_ConsumeUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := &checkout.Promotion{Code: "LAST1", MaxUses: intp(1), UsesCount: 0}
	store := &fakePromoStore{promos: map[string]*checkout.Promotion{"last1": p}}
	v := NewValidator(store, clock.NewSystem())

	ok, err := v.ConsumeUse(ctx, "LAST1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = v.ConsumeUse(ctx, "LAST1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, p.UsesCount)
}
