package payment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zambezimeats/checkout/internal/checkout"
)

type PostgresRepo struct{ DB *pgxpool.Pool }

// CreatePayment inserts the order's single payment row. When a concurrent
// initiation won the race, the unique order_id constraint collapses both
// attempts onto one row and the loser's gateway state wins the update.
func (r *PostgresRepo) CreatePayment(ctx context.Context, p checkout.Payment) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payments(id, order_id, gateway, status, amount_cents, currency,
		                     transaction_id, gateway_response, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
		ON CONFLICT (order_id) DO UPDATE
		SET status = EXCLUDED.status,
		    transaction_id = EXCLUDED.transaction_id,
		    gateway_response = EXCLUDED.gateway_response,
		    updated_at = EXCLUDED.updated_at`,
		p.ID, p.OrderID, p.Gateway, string(p.Status), p.AmountCents, p.Currency,
		p.TransactionID, p.GatewayResponse, p.CreatedAt)
	return err
}

func (r *PostgresRepo) GetPaymentByOrder(ctx context.Context, orderID string) (checkout.Payment, error) {
	var p checkout.Payment
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_id, gateway, status, amount_cents, currency,
		       transaction_id, gateway_response, created_at, updated_at
		FROM payments WHERE order_id = $1`, orderID).
		Scan(&p.ID, &p.OrderID, &p.Gateway, &p.Status, &p.AmountCents, &p.Currency,
			&p.TransactionID, &p.GatewayResponse, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return checkout.Payment{}, checkout.ErrPaymentNotFound
	}
	if err != nil {
		return checkout.Payment{}, err
	}
	return p, nil
}

func (r *PostgresRepo) UpdatePayment(ctx context.Context, p checkout.Payment) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE payments SET status = $2, transaction_id = $3, gateway_response = $4,
		                    updated_at = $5
		WHERE id = $1`,
		p.ID, string(p.Status), p.TransactionID, p.GatewayResponse, p.UpdatedAt)
	return err
}
