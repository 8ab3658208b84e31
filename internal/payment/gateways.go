package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/zambezimeats/checkout/internal/checkout"
)

// CashOnDelivery captures immediately: the courier collects on handover, so
// the payment is completed as soon as the order is dispatched to it.
type CashOnDelivery struct{}

func (CashOnDelivery) Name() string { return "cash_on_delivery" }

func (CashOnDelivery) Initiate(_ context.Context, order checkout.Order) (GatewayResult, error) {
	return GatewayResult{
		Status:        checkout.PaymentCompleted,
		TransactionID: "cod-" + order.ID,
		RawResponse:   `{"captured":"on_delivery"}`,
	}, nil
}

func (CashOnDelivery) Confirm(_ context.Context, order checkout.Order, _ string) (GatewayResult, error) {
	return GatewayResult{Status: checkout.PaymentCompleted, TransactionID: "cod-" + order.ID}, nil
}

// Hosted is the asynchronous flow shared by card, wallet and deferred
// providers: Initiate hands the client a continuation secret, Confirm
// completes once the client-side step reports back.
type Hosted struct {
	Provider string
}

func (g Hosted) Name() string { return g.Provider }

func (g Hosted) Initiate(_ context.Context, order checkout.Order) (GatewayResult, error) {
	intent := uuid.NewString()
	return GatewayResult{
		Status:        checkout.PaymentPending,
		TransactionID: intent,
		ClientSecret:  fmt.Sprintf("%s_secret_%s", g.Provider, intent),
		RawResponse:   fmt.Sprintf(`{"provider":%q,"intent":%q}`, g.Provider, intent),
	}, nil
}

func (g Hosted) Confirm(_ context.Context, _ checkout.Order, reference string) (GatewayResult, error) {
	if reference == "" {
		return GatewayResult{}, fmt.Errorf("%s: missing confirmation reference", g.Provider)
	}
	return GatewayResult{
		Status:        checkout.PaymentCompleted,
		TransactionID: reference,
		RawResponse:   fmt.Sprintf(`{"provider":%q,"confirmed":%q}`, g.Provider, reference),
	}, nil
}
