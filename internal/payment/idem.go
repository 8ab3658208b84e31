package payment

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zambezimeats/checkout/internal/redisx"
)

// IdemCache remembers the continuation secret handed out for an order so a
// retried initiation returns the same one. Best effort: a miss just means
// the gateway is asked for a fresh intent.
type IdemCache interface {
	GetSecret(ctx context.Context, orderID string) string
	PutSecret(ctx context.Context, orderID, secret string)
}

type RedisIdem struct {
	Client *redis.Client
	Log    logrus.FieldLogger
}

func (c *RedisIdem) GetSecret(ctx context.Context, orderID string) string {
	s, err := c.Client.Get(ctx, fmt.Sprintf(redisx.KeyIdemPayment, orderID)).Result()
	if err != nil {
		return ""
	}
	return s
}

func (c *RedisIdem) PutSecret(ctx context.Context, orderID, secret string) {
	key := fmt.Sprintf(redisx.KeyIdemPayment, orderID)
	if err := c.Client.Set(ctx, key, secret, redisx.TTLIdempotency).Err(); err != nil {
		c.Log.WithField("order_id", orderID).WithError(err).Warn("payment idem cache put failed")
	}
}
