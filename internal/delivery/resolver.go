package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/zambezimeats/checkout/internal/checkout"
)

// ZoneStore lists zones eligible for matching. Implementations must return
// zones in ascending id order; the first suburb match wins, which makes
// resolution deterministic when suburb lists overlap.
type ZoneStore interface {
	ListActiveZones(ctx context.Context) ([]checkout.DeliveryZone, error)
	GetZone(ctx context.Context, id int) (checkout.DeliveryZone, error)
}

type Resolver struct {
	store ZoneStore
}

func NewResolver(store ZoneStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve matches a location against active zones' suburb lists,
// case-insensitively. Postcode is accepted for the API surface but matching
// is suburb-driven; a missing suburb cannot match any zone.
func (r *Resolver) Resolve(ctx context.Context, postcode, suburb string) (checkout.DeliveryZone, error) {
	suburb = strings.TrimSpace(suburb)
	if suburb == "" {
		return checkout.DeliveryZone{}, checkout.ErrAddressNotDeliverable
	}

	zones, err := r.store.ListActiveZones(ctx)
	if err != nil {
		return checkout.DeliveryZone{}, err
	}
	for _, z := range zones {
		for _, s := range z.Suburbs {
			if strings.EqualFold(strings.TrimSpace(s), suburb) {
				return z, nil
			}
		}
	}
	return checkout.DeliveryZone{}, checkout.ErrAddressNotDeliverable
}

type Quote struct {
	FeeCents      int    `json:"fee_cents"`
	IsFree        bool   `json:"is_free"`
	EstimatedDays int    `json:"estimated_days"`
	Estimate      string `json:"estimate"`
}

// FeeFor applies the zone's free-delivery threshold: at or above it the fee
// is zero, otherwise the zone fee applies.
func FeeFor(zone checkout.DeliveryZone, subtotalCents int) Quote {
	q := Quote{
		FeeCents:      zone.DeliveryFeeCents,
		EstimatedDays: zone.EstimatedDays,
		Estimate:      estimateLabel(zone.EstimatedDays),
	}
	if zone.FreeDeliveryThresholdCents != nil && subtotalCents >= *zone.FreeDeliveryThresholdCents {
		q.FeeCents = 0
		q.IsFree = true
	}
	return q
}

func estimateLabel(days int) string {
	switch days {
	case 0:
		return "Same day"
	case 1:
		return "Next day"
	default:
		return fmt.Sprintf("%d business days", days)
	}
}
