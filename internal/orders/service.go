package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/zambezimeats/checkout/internal/checkout"
	"github.com/zambezimeats/checkout/internal/clock"
	"github.com/zambezimeats/checkout/internal/delivery"
	kafkax "github.com/zambezimeats/checkout/internal/kafka"
)

// Reserver is the slice of the stock manager the assembly flow needs.
type Reserver interface {
	Reserve(ctx context.Context, productID string, quantity int, orderID string) bool
	Release(ctx context.Context, productID, orderID string) bool
	AvailableStock(ctx context.Context, productID string) (int, error)
	HasStock(ctx context.Context, productID string, quantity int) bool
	ReleaseOrder(ctx context.Context, orderID string) int
}

type ZoneResolver interface {
	Resolve(ctx context.Context, postcode, suburb string) (checkout.DeliveryZone, error)
}

type PromoValidator interface {
	Validate(ctx context.Context, code string, subtotalCents int) (int, error)
	ConsumeUse(ctx context.Context, code string) (bool, error)
}

type Catalog interface {
	GetProduct(ctx context.Context, productID string) (checkout.Product, error)
}

type Repository interface {
	// CreateOrderTx writes the order and its items in one transaction.
	CreateOrderTx(ctx context.Context, order checkout.Order, items []checkout.OrderItem) error
	GetOrder(ctx context.Context, orderID string) (checkout.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]checkout.OrderItem, error)
	// UpdateStatus transitions the order, guarded by the expected current
	// status. Returns false when the guard does not match.
	UpdateStatus(ctx context.Context, orderID string, from, to checkout.Status) (bool, error)
}

type StatusCache interface {
	SetStatus(ctx context.Context, orderID string, status checkout.Status)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service assembles orders out of cart snapshots: re-validates stock and
// promo at commit time, reserves inventory, and persists the snapshot.
type Service struct {
	repo     Repository
	catalog  Catalog
	reserver Reserver
	zones    ZoneResolver
	promos   PromoValidator
	cache    StatusCache
	created  Publisher
	status   Publisher
	clock    clock.Clock
	log      logrus.FieldLogger
	service  string
	currency string
}

type ServiceParams struct {
	Repo            Repository
	Catalog         Catalog
	Reserver        Reserver
	Zones           ZoneResolver
	Promos          PromoValidator
	Cache           StatusCache
	CreatedProducer Publisher
	StatusProducer  Publisher
	Clock           clock.Clock
	Log             logrus.FieldLogger
	ServiceName     string
	Currency        string
}

func NewService(p ServiceParams) *Service {
	return &Service{
		repo:     p.Repo,
		catalog:  p.Catalog,
		reserver: p.Reserver,
		zones:    p.Zones,
		promos:   p.Promos,
		cache:    p.Cache,
		created:  p.CreatedProducer,
		status:   p.StatusProducer,
		clock:    p.Clock,
		log:      p.Log,
		service:  p.ServiceName,
		currency: p.Currency,
	}
}

type CreateOrderInput struct {
	UserID        string
	Items         []checkout.CartItem
	Address       checkout.Address
	PaymentMethod checkout.PaymentMethod
	PromoCode     string
	Notes         string
}

// CreateOrder runs the full assembly: validation, zone fee, promo, stock
// reservation, then the order+items transaction. Reservations are taken
// before the order row is written so a reservation failure leaves nothing
// persisted; a persistence failure after reservation releases everything.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (checkout.Order, []checkout.OrderItem, error) {
	if len(in.Items) == 0 {
		return checkout.Order{}, nil, checkout.ErrEmptyCart
	}
	if in.Address.ID == "" && (in.Address.Suburb == "" || in.Address.Postcode == "") {
		return checkout.Order{}, nil, checkout.ErrAddressRequired
	}
	switch in.PaymentMethod {
	case checkout.MethodCard, checkout.MethodWallet, checkout.MethodDeferred, checkout.MethodCashOnDelivery:
	default:
		return checkout.Order{}, nil, checkout.ErrUnknownPaymentMethod
	}

	// Load products and pre-check stock in one pass; shortfalls fail the
	// whole cart, no partial orders.
	products := make(map[string]checkout.Product, len(in.Items))
	var shortfalls []checkout.StockShortfall
	subtotal := 0
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return checkout.Order{}, nil, checkout.ErrInvalidQuantity
		}
		p, err := s.catalog.GetProduct(ctx, it.ProductID)
		if err != nil {
			return checkout.Order{}, nil, fmt.Errorf("load product %s: %w", it.ProductID, err)
		}
		products[p.ID] = p
		subtotal += p.EffectivePriceCents() * it.Quantity

		avail, err := s.reserver.AvailableStock(ctx, it.ProductID)
		if err != nil {
			return checkout.Order{}, nil, fmt.Errorf("check stock %s: %w", it.ProductID, err)
		}
		if avail < it.Quantity {
			shortfalls = append(shortfalls, checkout.StockShortfall{
				ProductID: p.ID, ProductName: p.Name, Required: it.Quantity, Available: avail,
			})
		}
	}
	if len(shortfalls) > 0 {
		return checkout.Order{}, nil, &checkout.InsufficientStockError{Shortfalls: shortfalls}
	}

	zone, err := s.zones.Resolve(ctx, in.Address.Postcode, in.Address.Suburb)
	if err != nil {
		return checkout.Order{}, nil, err
	}
	quote := delivery.FeeFor(zone, subtotal)

	// Re-validate the promo at commit time; a code that lapsed since browse
	// time fails the order instead of silently dropping the discount.
	discount := 0
	if in.PromoCode != "" {
		discount, err = s.promos.Validate(ctx, in.PromoCode, subtotal)
		if err != nil {
			return checkout.Order{}, nil, err
		}
	}

	total := subtotal + quote.FeeCents - discount
	if total < 0 {
		total = 0
	}

	now := s.clock.Now()
	order := checkout.Order{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		Status:           checkout.StatusPending,
		SubtotalCents:    subtotal,
		DeliveryFeeCents: quote.FeeCents,
		DiscountCents:    discount,
		TotalCents:       total,
		Currency:         s.currency,
		PaymentMethod:    in.PaymentMethod,
		AddressID:        in.Address.ID,
		DeliveryZoneID:   &zone.ID,
		PromotionCode:    in.PromoCode,
		Notes:            in.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	items := make([]checkout.OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		p := products[it.ProductID]
		unit := p.EffectivePriceCents()
		items = append(items, checkout.OrderItem{
			ID:             uuid.NewString(),
			OrderID:        order.ID,
			ProductID:      p.ID,
			ProductName:    p.Name,
			Quantity:       it.Quantity,
			UnitPriceCents: unit,
			TotalCents:     unit * it.Quantity,
		})
	}

	if err := s.reserveAll(ctx, order.ID, in.Items, products); err != nil {
		return checkout.Order{}, nil, err
	}

	if err := s.repo.CreateOrderTx(ctx, order, items); err != nil {
		s.rollback(ctx, order.ID, in.Items, len(in.Items))
		s.log.WithField("order_id", order.ID).WithError(err).Error("persist order failed")
		return checkout.Order{}, nil, fmt.Errorf("persist order: %w", err)
	}

	if in.PromoCode != "" {
		if ok, err := s.promos.ConsumeUse(ctx, in.PromoCode); err != nil || !ok {
			// The validation above held the cap; losing the increment race
			// here is tolerated rather than unwinding a committed order.
			s.log.WithFields(logrus.Fields{"order_id": order.ID, "promo": in.PromoCode}).
				WithError(err).Warn("promo use not recorded")
		}
	}

	if s.cache != nil {
		s.cache.SetStatus(ctx, order.ID, order.Status)
	}
	s.publishCreated(order, in.Items)
	s.log.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"total_cents": order.TotalCents,
		"items":       len(items),
	}).Info("order created")
	return order, items, nil
}

// reserveAll takes reservations in cart order; on any failure it rolls back
// already-held items in reverse-acquisition order so each is released
// exactly once.
func (s *Service) reserveAll(ctx context.Context, orderID string, items []checkout.CartItem, products map[string]checkout.Product) error {
	for i, it := range items {
		if s.reserver.Reserve(ctx, it.ProductID, it.Quantity, orderID) {
			continue
		}
		s.rollback(ctx, orderID, items, i)

		avail, err := s.reserver.AvailableStock(ctx, it.ProductID)
		if err == nil && avail < it.Quantity {
			p := products[it.ProductID]
			return &checkout.InsufficientStockError{Shortfalls: []checkout.StockShortfall{
				{ProductID: it.ProductID, ProductName: p.Name, Required: it.Quantity, Available: avail},
			}}
		}
		return &checkout.StockReservationError{OrderID: orderID, ProductID: it.ProductID}
	}
	return nil
}

func (s *Service) rollback(ctx context.Context, orderID string, items []checkout.CartItem, upTo int) {
	for i := upTo - 1; i >= 0; i-- {
		s.reserver.Release(ctx, items[i].ProductID, orderID)
	}
}

// Transition moves an order along the status machine. Cancelling releases
// any reservations still held for the order.
func (s *Service) Transition(ctx context.Context, orderID string, to checkout.Status) (checkout.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return checkout.Order{}, err
	}
	if !checkout.CanTransition(order.Status, to) {
		return checkout.Order{}, fmt.Errorf("%w: %s -> %s", checkout.ErrInvalidTransition, order.Status, to)
	}
	ok, err := s.repo.UpdateStatus(ctx, orderID, order.Status, to)
	if err != nil {
		return checkout.Order{}, err
	}
	if !ok {
		// Lost a concurrent transition race; re-read and report.
		cur, err := s.repo.GetOrder(ctx, orderID)
		if err != nil {
			return checkout.Order{}, err
		}
		return checkout.Order{}, fmt.Errorf("%w: %s -> %s", checkout.ErrInvalidTransition, cur.Status, to)
	}

	from := order.Status
	order.Status = to
	if to == checkout.StatusCancelled {
		released := s.reserver.ReleaseOrder(ctx, orderID)
		s.log.WithFields(logrus.Fields{"order_id": orderID, "released": released}).Info("order cancelled")
	}
	if s.cache != nil {
		s.cache.SetStatus(ctx, orderID, to)
	}
	s.publishStatus(orderID, from, to)
	return order, nil
}

func (s *Service) Cancel(ctx context.Context, orderID string) (checkout.Order, error) {
	return s.Transition(ctx, orderID, checkout.StatusCancelled)
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (checkout.Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

func (s *Service) GetOrderItems(ctx context.Context, orderID string) ([]checkout.OrderItem, error) {
	return s.repo.GetOrderItems(ctx, orderID)
}

func (s *Service) publishCreated(order checkout.Order, items []checkout.CartItem) {
	if s.created == nil {
		return
	}
	ev := checkout.Envelope{
		EventID:       uuid.NewString(),
		EventType:     checkout.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.service,
		CorrelationID: order.ID,
		Payload: kafkax.MustMarshal(checkout.OrderCreatedPayload{
			OrderID:       order.ID,
			UserID:        order.UserID,
			Items:         items,
			SubtotalCents: order.SubtotalCents,
			TotalCents:    order.TotalCents,
			PromotionCode: order.PromotionCode,
		}),
	}
	s.created.Publish(checkout.PartitionKey(order.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(checkout.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) publishStatus(orderID string, from, to checkout.Status) {
	if s.status == nil {
		return
	}
	ev := checkout.Envelope{
		EventID:       uuid.NewString(),
		EventType:     checkout.EventStatusChanged,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(checkout.StatusChangedPayload{OrderID: orderID, From: from, To: to}),
	}
	s.status.Publish(checkout.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(checkout.EventStatusChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
