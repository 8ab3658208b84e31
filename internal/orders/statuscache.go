package orders

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zambezimeats/checkout/internal/checkout"
	"github.com/zambezimeats/checkout/internal/redisx"
)

// RedisStatusCache keeps the order-status read cache warm. Best effort:
// failures are logged and ignored, the database stays authoritative.
type RedisStatusCache struct {
	Client *redis.Client
	Log    logrus.FieldLogger
}

func (c *RedisStatusCache) SetStatus(ctx context.Context, orderID string, status checkout.Status) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	val := fmt.Sprintf(`{"status":%q}`, status)
	if err := c.Client.Set(ctx, key, val, redisx.TTLStatusCache).Err(); err != nil {
		c.Log.WithField("order_id", orderID).WithError(err).Warn("status cache set failed")
	}
}
