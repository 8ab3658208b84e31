package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/zambezimeats/checkout/internal/checkout"
	"github.com/zambezimeats/checkout/internal/clock"
	kafkax "github.com/zambezimeats/checkout/internal/kafka"
)

// ExpiredLister finds reservations whose window has lapsed. The durable
// reservation row makes this query possible; the Redis entry evicts itself
// but never restores stock.
type ExpiredLister interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]checkout.Reservation, error)
}

type Releaser interface {
	Release(ctx context.Context, productID, orderID string) bool
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

const sweepBatch = 200

// Worker is the active counterpart to passive cache expiry: every interval
// it releases reservations past expires_at, restoring their held stock.
type Worker struct {
	store    ExpiredLister
	stock    Releaser
	events   Publisher
	clock    clock.Clock
	log      logrus.FieldLogger
	interval time.Duration
	service  string
}

func NewWorker(store ExpiredLister, stk Releaser, events Publisher, clk clock.Clock, log logrus.FieldLogger, interval time.Duration, service string) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		store:    store,
		stock:    stk,
		events:   events,
		clock:    clk,
		log:      log,
		interval: interval,
		service:  service,
	}
}

// Run sweeps until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep releases one batch of expired reservations and reports how many
// were restored.
func (w *Worker) Sweep(ctx context.Context) int {
	now := w.clock.Now()
	expired, err := w.store.ListExpired(ctx, now, sweepBatch)
	if err != nil {
		w.log.WithError(err).Error("sweep: list expired reservations")
		return 0
	}

	released := 0
	for _, res := range expired {
		if !w.stock.Release(ctx, res.ProductID, res.OrderID) {
			// Released or confirmed since the query; nothing to restore.
			continue
		}
		released++
		w.publishReleased(res)
	}
	if len(expired) > 0 {
		w.log.WithFields(logrus.Fields{"expired": len(expired), "released": released}).
			Info("reservation sweep")
	}
	return released
}

func (w *Worker) publishReleased(res checkout.Reservation) {
	if w.events == nil {
		return
	}
	ev := checkout.Envelope{
		EventID:       uuid.NewString(),
		EventType:     checkout.EventStockReleased,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      w.service,
		CorrelationID: res.OrderID,
		Payload: kafkax.MustMarshal(checkout.StockReleasedPayload{
			OrderID:   res.OrderID,
			ProductID: res.ProductID,
			Quantity:  res.Quantity,
			Reason:    "EXPIRED",
		}),
	}
	w.events.Publish(checkout.PartitionKey(res.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(checkout.EventStockReleased)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
