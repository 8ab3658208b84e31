package invoice

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/zambezimeats/checkout/internal/checkout"
	"github.com/zambezimeats/checkout/internal/clock"
)

const dueDays = 30

type Repository interface {
	GetByOrder(ctx context.Context, orderID string) (*checkout.Invoice, error)
	// Create inserts the invoice; when a concurrent request won the race it
	// returns the existing row instead.
	Create(ctx context.Context, inv checkout.Invoice) (checkout.Invoice, error)
	NextNumber(ctx context.Context, year int) (int, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (checkout.Order, error)
}

// Generator derives invoices lazily: the first request for an order's
// invoice creates it, later requests get the same row back.
type Generator struct {
	repo   Repository
	orders OrderReader
	clock  clock.Clock
}

func NewGenerator(repo Repository, orders OrderReader, clk clock.Clock) *Generator {
	return &Generator{repo: repo, orders: orders, clock: clk}
}

func (g *Generator) ForOrder(ctx context.Context, orderID string) (checkout.Invoice, error) {
	if existing, err := g.repo.GetByOrder(ctx, orderID); err != nil {
		return checkout.Invoice{}, err
	} else if existing != nil {
		return *existing, nil
	}

	order, err := g.orders.GetOrder(ctx, orderID)
	if err != nil {
		return checkout.Invoice{}, err
	}
	// Invoices document settled orders; a pending order has nothing to bill
	// yet.
	if order.Status == checkout.StatusPending {
		return checkout.Invoice{}, checkout.ErrInvoiceUnavailable
	}

	issue := g.clock.Now()
	seq, err := g.repo.NextNumber(ctx, issue.Year())
	if err != nil {
		return checkout.Invoice{}, err
	}

	inv := checkout.Invoice{
		ID:               uuid.NewString(),
		OrderID:          order.ID,
		Number:           fmt.Sprintf("INV-%d-%06d", issue.Year(), seq),
		SubtotalCents:    order.SubtotalCents,
		DeliveryFeeCents: order.DeliveryFeeCents,
		DiscountCents:    order.DiscountCents,
		TotalCents:       order.TotalCents,
		Currency:         order.Currency,
		Status:           statusFor(order),
		IssueDate:        issue,
		DueDate:          issue.AddDate(0, 0, dueDays),
	}
	return g.repo.Create(ctx, inv)
}

func statusFor(order checkout.Order) checkout.InvoiceStatus {
	if order.Status == checkout.StatusCancelled {
		return checkout.InvoiceCancelled
	}
	// Payment settled before any other post-pending status.
	return checkout.InvoicePaid
}
