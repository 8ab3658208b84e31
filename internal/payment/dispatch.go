package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zambezimeats/checkout/internal/checkout"
	"github.com/zambezimeats/checkout/internal/clock"
)

// Gateway abstracts one payment provider. Initiate either captures
// immediately (Completed) or returns a client continuation token (Pending).
type Gateway interface {
	Name() string
	Initiate(ctx context.Context, order checkout.Order) (GatewayResult, error)
	Confirm(ctx context.Context, order checkout.Order, reference string) (GatewayResult, error)
}

type GatewayResult struct {
	Status        checkout.PaymentStatus
	TransactionID string
	ClientSecret  string
	RawResponse   string
}

type Repository interface {
	CreatePayment(ctx context.Context, p checkout.Payment) error
	GetPaymentByOrder(ctx context.Context, orderID string) (checkout.Payment, error)
	UpdatePayment(ctx context.Context, p checkout.Payment) error
}

// Confirmer is the slice of the stock manager payment needs.
type Confirmer interface {
	ConfirmOrder(ctx context.Context, orderID string) int
}

// OrderTransitioner moves orders along the status machine after payment
// outcomes.
type OrderTransitioner interface {
	GetOrder(ctx context.Context, orderID string) (checkout.Order, error)
	Transition(ctx context.Context, orderID string, to checkout.Status) (checkout.Order, error)
}

const gatewayTimeout = 10 * time.Second

// Dispatcher routes an order to the gateway its payment method implies.
// Gateway calls run under their own timeout and never inside a database
// transaction. An order has at most one payment row; retries reuse it.
type Dispatcher struct {
	gateways map[checkout.PaymentMethod]Gateway
	repo     Repository
	stock    Confirmer
	orders   OrderTransitioner
	idem     IdemCache
	clock    clock.Clock
	log      logrus.FieldLogger
}

type Option func(*Dispatcher)

// WithIdemCache remembers handed-out continuation secrets so a retried
// initiation returns the same secret instead of opening a fresh intent.
func WithIdemCache(c IdemCache) Option {
	return func(d *Dispatcher) { d.idem = c }
}

func NewDispatcher(repo Repository, stk Confirmer, ord OrderTransitioner, clk clock.Clock, log logrus.FieldLogger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		gateways: make(map[checkout.PaymentMethod]Gateway),
		repo:     repo,
		stock:    stk,
		orders:   ord,
		clock:    clk,
		log:      log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Register(method checkout.PaymentMethod, gw Gateway) {
	d.gateways[method] = gw
}

type Result struct {
	Payment      checkout.Payment
	Order        checkout.Order
	ClientSecret string
}

// Process initiates payment for a pending order. Cash on delivery captures
// synchronously and confirms the reservations; card, wallet and deferred
// return a pending payment with the gateway's continuation token while
// reservations stay held. On gateway failure the order remains pending and
// retryable. A retry reuses the order's single payment row: a cached
// continuation secret is returned as-is, otherwise the gateway is asked for
// a fresh intent and the row is updated in place.
func (d *Dispatcher) Process(ctx context.Context, orderID string) (Result, error) {
	order, err := d.orders.GetOrder(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if order.Status != checkout.StatusPending {
		return Result{}, fmt.Errorf("%w: order is %s", checkout.ErrInvalidTransition, order.Status)
	}

	existing, err := d.repo.GetPaymentByOrder(ctx, orderID)
	if err != nil && !errors.Is(err, checkout.ErrPaymentNotFound) {
		return Result{}, err
	}
	retry := err == nil
	if retry {
		switch existing.Status {
		case checkout.PaymentCompleted:
			// Captured but the settle was interrupted; finish it.
			settled, err := d.settle(ctx, orderID)
			if err != nil {
				return Result{}, err
			}
			return Result{Payment: existing, Order: settled}, nil
		case checkout.PaymentPending:
			if d.idem != nil {
				if secret := d.idem.GetSecret(ctx, orderID); secret != "" {
					return Result{Payment: existing, Order: order, ClientSecret: secret}, nil
				}
			}
		}
	}

	gw, ok := d.gateways[order.PaymentMethod]
	if !ok {
		return Result{}, checkout.ErrUnknownPaymentMethod
	}

	gwCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()
	res, err := gw.Initiate(gwCtx, order)
	if err != nil {
		d.log.WithFields(logrus.Fields{"order_id": orderID, "gateway": gw.Name()}).
			WithError(err).Error("gateway initiate failed")
		return Result{}, fmt.Errorf("%w: %v", checkout.ErrPaymentGateway, err)
	}

	now := d.clock.Now()
	p := checkout.Payment{
		ID:              uuid.NewString(),
		OrderID:         order.ID,
		Gateway:         gw.Name(),
		Status:          res.Status,
		AmountCents:     order.TotalCents,
		Currency:        order.Currency,
		TransactionID:   res.TransactionID,
		GatewayResponse: res.RawResponse,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if retry {
		p.ID, p.CreatedAt = existing.ID, existing.CreatedAt
		err = d.repo.UpdatePayment(ctx, p)
	} else {
		err = d.repo.CreatePayment(ctx, p)
	}
	if err != nil {
		return Result{}, fmt.Errorf("persist payment: %w", err)
	}
	if d.idem != nil && res.ClientSecret != "" {
		d.idem.PutSecret(ctx, orderID, res.ClientSecret)
	}

	out := Result{Payment: p, Order: order, ClientSecret: res.ClientSecret}
	if res.Status == checkout.PaymentCompleted {
		out.Order, err = d.settle(ctx, order.ID)
		if err != nil {
			return Result{}, err
		}
	}
	d.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"gateway":  gw.Name(),
		"status":   p.Status,
		"amount":   p.AmountCents,
	}).Info("payment dispatched")
	return out, nil
}

// ConfirmPayment finishes an asynchronous payment once the gateway reports
// success. Idempotent: confirming an already-completed payment returns the
// settled state again.
func (d *Dispatcher) ConfirmPayment(ctx context.Context, orderID, reference string) (Result, error) {
	order, err := d.orders.GetOrder(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	p, err := d.repo.GetPaymentByOrder(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if p.Status == checkout.PaymentCompleted {
		return Result{Payment: p, Order: order}, nil
	}
	if p.Status != checkout.PaymentPending {
		return Result{}, fmt.Errorf("%w: payment is %s", checkout.ErrPaymentGateway, p.Status)
	}

	gw, ok := d.gateways[order.PaymentMethod]
	if !ok {
		return Result{}, checkout.ErrUnknownPaymentMethod
	}

	gwCtx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	defer cancel()
	res, err := gw.Confirm(gwCtx, order, reference)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", checkout.ErrPaymentGateway, err)
	}

	p.Status = res.Status
	if res.TransactionID != "" {
		p.TransactionID = res.TransactionID
	}
	p.GatewayResponse = res.RawResponse
	p.UpdatedAt = d.clock.Now()
	if err := d.repo.UpdatePayment(ctx, p); err != nil {
		return Result{}, fmt.Errorf("persist payment: %w", err)
	}

	if res.Status != checkout.PaymentCompleted {
		// Reservations stay held; the order stays pending and retryable
		// until the customer retries, cancels, or the holds expire.
		d.log.WithFields(logrus.Fields{"order_id": orderID, "status": res.Status}).
			Warn("payment confirmation did not complete")
		return Result{Payment: p, Order: order}, nil
	}

	settled, err := d.settle(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	return Result{Payment: p, Order: settled}, nil
}

// settle makes the reservation decrements permanent and confirms the order.
func (d *Dispatcher) settle(ctx context.Context, orderID string) (checkout.Order, error) {
	confirmed := d.stock.ConfirmOrder(ctx, orderID)
	order, err := d.orders.Transition(ctx, orderID, checkout.StatusConfirmed)
	if err != nil {
		return checkout.Order{}, err
	}
	d.log.WithFields(logrus.Fields{"order_id": orderID, "reservations": confirmed}).
		Info("order settled")
	return order, nil
}
