package delivery

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zambezimeats/checkout/internal/checkout"
)

type PostgresStore struct{ DB *pgxpool.Pool }

var ErrZoneNotFound = errors.New("delivery zone not found")

func (s *PostgresStore) ListActiveZones(ctx context.Context) ([]checkout.DeliveryZone, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, suburbs, delivery_fee_cents, free_delivery_threshold_cents, estimated_days, is_active
		FROM delivery_zones
		WHERE is_active
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []checkout.DeliveryZone
	for rows.Next() {
		var z checkout.DeliveryZone
		if err := rows.Scan(&z.ID, &z.Name, &z.Suburbs, &z.DeliveryFeeCents,
			&z.FreeDeliveryThresholdCents, &z.EstimatedDays, &z.IsActive); err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetZone(ctx context.Context, id int) (checkout.DeliveryZone, error) {
	var z checkout.DeliveryZone
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, suburbs, delivery_fee_cents, free_delivery_threshold_cents, estimated_days, is_active
		FROM delivery_zones WHERE id = $1`, id).
		Scan(&z.ID, &z.Name, &z.Suburbs, &z.DeliveryFeeCents,
			&z.FreeDeliveryThresholdCents, &z.EstimatedDays, &z.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return checkout.DeliveryZone{}, ErrZoneNotFound
	}
	if err != nil {
		return checkout.DeliveryZone{}, err
	}
	return z, nil
}
