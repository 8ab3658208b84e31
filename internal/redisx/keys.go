package redisx

import "time"

const (
	// Reservation entry: stock_reservation:{product_id}:{order_id} ->
	// {product_id, order_id, quantity, expires_at}. TTL tracks expires_at.
	KeyStockReservation = "stock_reservation:%s:%s"

	// Order status read cache: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Payment idempotency: idem:payment:{order_id} -> continuation secret,
	// so a retried initiation returns the same secret.
	KeyIdemPayment = "idem:payment:%s"

	// Event dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
