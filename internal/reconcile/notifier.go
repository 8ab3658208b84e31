package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/zambezimeats/checkout/internal/checkout"
	kafkax "github.com/zambezimeats/checkout/internal/kafka"
	"github.com/zambezimeats/checkout/internal/redisx"
)

// Notifier consumes order status events: it keeps the Redis status cache
// warm and emits customer-notification log lines. Delivery channels (mail
// and so on) hang off these lines downstream.
type Notifier struct {
	Redis   *redis.Client
	Log     logrus.FieldLogger
	Service string
}

// HandleStatusChanged is wired as the consumer handler for the status topic.
func (n *Notifier) HandleStatusChanged(ctx context.Context, m kafkago.Message) error {
	var env checkout.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != checkout.EventStatusChanged {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, n.Service, env.EventID)
	if exists, _ := redisx.Exists(ctx, n.Redis, dkey); exists {
		return nil
	}
	_ = n.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[checkout.StatusChangedPayload](env.Payload)
	if err != nil {
		return err
	}

	key := fmt.Sprintf(redisx.KeyOrderStatus, p.OrderID)
	val := fmt.Sprintf(`{"status":%q}`, p.To)
	if err := n.Redis.Set(ctx, key, val, redisx.TTLStatusCache).Err(); err != nil {
		n.Log.WithField("order_id", p.OrderID).WithError(err).Warn("status cache refresh failed")
	}

	n.Log.WithFields(logrus.Fields{
		"order_id": p.OrderID,
		"from":     p.From,
		"to":       p.To,
	}).Info("order status notification")
	return nil
}
