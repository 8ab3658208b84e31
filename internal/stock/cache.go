package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zambezimeats/checkout/internal/checkout"
	"github.com/zambezimeats/checkout/internal/redisx"
)

// RedisCache mirrors reservation entries with a TTL that tracks expires_at,
// so a lapsed entry vanishes on its own. The durable row stays authoritative.
type RedisCache struct{ Client *redis.Client }

func (c *RedisCache) PutReservation(ctx context.Context, res checkout.Reservation) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	ttl := time.Until(res.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	key := fmt.Sprintf(redisx.KeyStockReservation, res.ProductID, res.OrderID)
	return c.Client.Set(ctx, key, b, ttl).Err()
}

func (c *RedisCache) DeleteReservation(ctx context.Context, productID, orderID string) error {
	key := fmt.Sprintf(redisx.KeyStockReservation, productID, orderID)
	return c.Client.Del(ctx, key).Err()
}
