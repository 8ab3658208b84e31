package invoice

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zambezimeats/checkout/internal/checkout"
)

type PostgresRepo struct{ DB *pgxpool.Pool }

func (r *PostgresRepo) GetByOrder(ctx context.Context, orderID string) (*checkout.Invoice, error) {
	var inv checkout.Invoice
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_id, number, subtotal_cents, delivery_fee_cents, discount_cents,
		       total_cents, currency, status, issue_date, due_date
		FROM invoices WHERE order_id = $1`, orderID).
		Scan(&inv.ID, &inv.OrderID, &inv.Number, &inv.SubtotalCents, &inv.DeliveryFeeCents,
			&inv.DiscountCents, &inv.TotalCents, &inv.Currency, &inv.Status,
			&inv.IssueDate, &inv.DueDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Create relies on the unique order_id constraint: a concurrent create loses
// the race and falls back to the winner's row, keeping generation idempotent.
func (r *PostgresRepo) Create(ctx context.Context, inv checkout.Invoice) (checkout.Invoice, error) {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO invoices(id, order_id, number, subtotal_cents, delivery_fee_cents,
		                     discount_cents, total_cents, currency, status, issue_date, due_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		inv.ID, inv.OrderID, inv.Number, inv.SubtotalCents, inv.DeliveryFeeCents,
		inv.DiscountCents, inv.TotalCents, inv.Currency, string(inv.Status),
		inv.IssueDate, inv.DueDate)
	if isUniqueViolation(err) {
		existing, gerr := r.GetByOrder(ctx, inv.OrderID)
		if gerr != nil {
			return checkout.Invoice{}, gerr
		}
		if existing != nil {
			return *existing, nil
		}
	}
	if err != nil {
		return checkout.Invoice{}, err
	}
	return inv, nil
}

// NextNumber hands out the next sequence number for the year; the counter
// restarts at 1 each year. The upsert serializes on the year row.
func (r *PostgresRepo) NextNumber(ctx context.Context, year int) (int, error) {
	var n int
	err := r.DB.QueryRow(ctx, `
		INSERT INTO invoice_numbers(year, last) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last = invoice_numbers.last + 1
		RETURNING last`, year).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
