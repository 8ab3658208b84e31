package promo

import (
	"context"
	"strings"

	"github.com/zambezimeats/checkout/internal/checkout"
	"github.com/zambezimeats/checkout/internal/clock"
)

type Store interface {
	// GetByCode looks the code up case-insensitively; nil when unknown.
	GetByCode(ctx context.Context, code string) (*checkout.Promotion, error)
	// ConsumeUse increments uses_count, guarded by max_uses. Returns false
	// when the cap is already reached.
	ConsumeUse(ctx context.Context, code string) (bool, error)
}

type Validator struct {
	store Store
	clock clock.Clock
}

func NewValidator(store Store, clk clock.Clock) *Validator {
	return &Validator{store: store, clock: clk}
}

// Validate checks a promo code against the subtotal. Checks short-circuit in
// order: exists, active, date window, minimum order, usage cap. On success it
// returns the discount in cents; a fixed discount is clamped to the subtotal
// so the total can never go negative.
func (v *Validator) Validate(ctx context.Context, code string, subtotalCents int) (int, error) {
	code = strings.TrimSpace(code)
	p, err := v.store.GetByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, &checkout.PromoInvalidError{Code: code, Reason: checkout.PromoNotFound}
	}
	if !p.IsActive {
		return 0, &checkout.PromoInvalidError{Code: code, Reason: checkout.PromoInactive}
	}
	now := v.clock.Now()
	if now.Before(p.StartDate) || now.After(p.EndDate) {
		return 0, &checkout.PromoInvalidError{Code: code, Reason: checkout.PromoExpired}
	}
	if subtotalCents < p.MinOrderCents {
		return 0, &checkout.PromoInvalidError{Code: code, Reason: checkout.PromoBelowMinimum}
	}
	if p.MaxUses != nil && p.UsesCount >= *p.MaxUses {
		return 0, &checkout.PromoInvalidError{Code: code, Reason: checkout.PromoExhausted}
	}
	return Discount(*p, subtotalCents), nil
}

// ConsumeUse records one redemption; called after the order is committed.
func (v *Validator) ConsumeUse(ctx context.Context, code string) (bool, error) {
	return v.store.ConsumeUse(ctx, strings.TrimSpace(code))
}

func Discount(p checkout.Promotion, subtotalCents int) int {
	switch p.Type {
	case checkout.PromoPercentage:
		return subtotalCents * p.Value / 100
	case checkout.PromoFixed:
		if p.Value > subtotalCents {
			return subtotalCents
		}
		return p.Value
	}
	return 0
}
