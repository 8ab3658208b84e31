package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zambezimeats/checkout/internal/checkout"
)

// PostgresStore implements Store on pgx. The reservations table is the
// durable source of truth; expired rows are swept by the reconciler.
type PostgresStore struct{ DB *pgxpool.Pool }

func (s *PostgresStore) GetProduct(ctx context.Context, productID string) (checkout.Product, error) {
	var p checkout.Product
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, stock, price_cents, sale_price_cents
		FROM products WHERE id = $1`, productID).
		Scan(&p.ID, &p.Name, &p.StockCount, &p.PriceCents, &p.SalePriceCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return checkout.Product{}, checkout.ErrProductNotFound
	}
	if err != nil {
		return checkout.Product{}, err
	}
	return p, nil
}

// Reserve runs the availability check, decrement, and reservation insert as
// one transaction. The conditional UPDATE is the oversell guard: concurrent
// reservations for the same product serialize on the row and only succeed
// while stock covers them.
func (s *PostgresStore) Reserve(ctx context.Context, res checkout.Reservation) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock IS NOT NULL AND stock >= $2`,
		res.ProductID, res.Quantity)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() != 1 {
		return false, nil
	}

	ct, err = tx.Exec(ctx, `
		INSERT INTO reservations(product_id, order_id, qty, status, expires_at, created_at)
		VALUES ($1, $2, $3, 'reserved', $4, $5)
		ON CONFLICT (product_id, order_id) DO NOTHING`,
		res.ProductID, res.OrderID, res.Quantity, res.ExpiresAt, res.CreatedAt)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() != 1 {
		// Active reservation already exists for this pair; rollback keeps
		// the decrement unapplied.
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) Release(ctx context.Context, productID, orderID string) (*checkout.Reservation, error) {
	return s.close(ctx, productID, orderID, checkout.ReservationReleased, true)
}

func (s *PostgresStore) Confirm(ctx context.Context, productID, orderID string) (*checkout.Reservation, error) {
	return s.close(ctx, productID, orderID, checkout.ReservationConfirmed, false)
}

func (s *PostgresStore) close(ctx context.Context, productID, orderID string, to checkout.ReservationStatus, restock bool) (*checkout.Reservation, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var res checkout.Reservation
	res.ProductID, res.OrderID = productID, orderID
	err = tx.QueryRow(ctx, `
		SELECT qty, expires_at, created_at FROM reservations
		WHERE product_id = $1 AND order_id = $2 AND status = 'reserved'
		FOR UPDATE`, productID, orderID).
		Scan(&res.Quantity, &res.ExpiresAt, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if restock {
		if _, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = now()
			WHERE id = $1 AND stock IS NOT NULL`, productID, res.Quantity); err != nil {
			return nil, err
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE reservations SET status = $3
		WHERE product_id = $1 AND order_id = $2 AND status = 'reserved'`,
		productID, orderID, string(to)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	res.Status = to
	return &res, nil
}

func (s *PostgresStore) ListActiveByOrder(ctx context.Context, orderID string) ([]checkout.Reservation, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT product_id, qty, expires_at, created_at FROM reservations
		WHERE order_id = $1 AND status = 'reserved'
		ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []checkout.Reservation
	for rows.Next() {
		res := checkout.Reservation{OrderID: orderID, Status: checkout.ReservationReserved}
		if err := rows.Scan(&res.ProductID, &res.Quantity, &res.ExpiresAt, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]checkout.Reservation, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT product_id, order_id, qty, expires_at, created_at FROM reservations
		WHERE status = 'reserved' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []checkout.Reservation
	for rows.Next() {
		res := checkout.Reservation{Status: checkout.ReservationReserved}
		if err := rows.Scan(&res.ProductID, &res.OrderID, &res.Quantity, &res.ExpiresAt, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
