package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zambezimeats/checkout/internal/checkout"
)

type Repo struct{ DB *pgxpool.Pool }

// CreateOrderTx writes the order row and its item snapshots atomically:
// either everything lands or nothing does.
func (r *Repo) CreateOrderTx(ctx context.Context, order checkout.Order, items []checkout.OrderItem) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, status, subtotal_cents, delivery_fee_cents,
		                   discount_cents, total_cents, currency, payment_method,
		                   address_id, delivery_zone_id, promotion_code, notes,
		                   created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)`,
		order.ID, order.UserID, string(order.Status), order.SubtotalCents,
		order.DeliveryFeeCents, order.DiscountCents, order.TotalCents,
		order.Currency, string(order.PaymentMethod), nullable(order.AddressID),
		order.DeliveryZoneID, nullable(order.PromotionCode), nullable(order.Notes),
		order.CreatedAt)
	if err != nil {
		return err
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, product_name, qty,
			                        unit_price_cents, total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, it.OrderID, it.ProductID, it.ProductName, it.Quantity,
			it.UnitPriceCents, it.TotalCents); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (checkout.Order, error) {
	var o checkout.Order
	var addressID, promo, notes *string
	err := r.DB.QueryRow(ctx, `
		SELECT id, user_id, status, subtotal_cents, delivery_fee_cents, discount_cents,
		       total_cents, currency, payment_method, address_id, delivery_zone_id,
		       promotion_code, notes, created_at, updated_at
		FROM orders WHERE id = $1`, orderID).
		Scan(&o.ID, &o.UserID, &o.Status, &o.SubtotalCents, &o.DeliveryFeeCents,
			&o.DiscountCents, &o.TotalCents, &o.Currency, &o.PaymentMethod,
			&addressID, &o.DeliveryZoneID, &promo, &notes, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return checkout.Order{}, checkout.ErrOrderNotFound
	}
	if err != nil {
		return checkout.Order{}, err
	}
	o.AddressID = deref(addressID)
	o.PromotionCode = deref(promo)
	o.Notes = deref(notes)
	return o, nil
}

func (r *Repo) GetOrderItems(ctx context.Context, orderID string) ([]checkout.OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_name, qty, unit_price_cents, total_cents
		FROM order_items WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []checkout.OrderItem
	for rows.Next() {
		var it checkout.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.Quantity, &it.UnitPriceCents, &it.TotalCents); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateStatus is guarded by the expected current status so concurrent
// transitions cannot skip states.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, from, to checkout.Status) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, orderID, string(from), string(to))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
