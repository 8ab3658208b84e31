package promo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zambezimeats/checkout/internal/checkout"
)

type PostgresStore struct{ DB *pgxpool.Pool }

func (s *PostgresStore) GetByCode(ctx context.Context, code string) (*checkout.Promotion, error) {
	var p checkout.Promotion
	err := s.DB.QueryRow(ctx, `
		SELECT code, type, value, min_order_cents, max_uses, uses_count,
		       start_date, end_date, is_active
		FROM promotions WHERE lower(code) = lower($1)`, code).
		Scan(&p.Code, &p.Type, &p.Value, &p.MinOrderCents, &p.MaxUses,
			&p.UsesCount, &p.StartDate, &p.EndDate, &p.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ConsumeUse is a guarded increment so concurrent checkouts cannot push
// uses_count past max_uses.
func (s *PostgresStore) ConsumeUse(ctx context.Context, code string) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE promotions SET uses_count = uses_count + 1
		WHERE lower(code) = lower($1)
		  AND (max_uses IS NULL OR uses_count < max_uses)`, code)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
