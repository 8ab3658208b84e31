package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart             = errors.New("cart is empty")
	ErrAddressRequired       = errors.New("address or address_id required")
	ErrAddressNotDeliverable = errors.New("address is outside our delivery area")
	ErrProductNotFound       = errors.New("product not found")
	ErrOrderNotFound         = errors.New("order not found")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrUnknownPaymentMethod  = errors.New("unknown payment method")
	ErrPaymentGateway        = errors.New("payment gateway failure")
	ErrInvoiceUnavailable    = errors.New("invoice is not available until the order is paid")
)

// PromoReason identifies why a promo code was rejected.
type PromoReason string

const (
	PromoNotFound     PromoReason = "not_found"
	PromoInactive     PromoReason = "inactive"
	PromoExpired      PromoReason = "expired"
	PromoBelowMinimum PromoReason = "below_minimum"
	PromoExhausted    PromoReason = "exhausted"
)

type PromoInvalidError struct {
	Code   string
	Reason PromoReason
}

func (e *PromoInvalidError) Error() string {
	return fmt.Sprintf("promo %q invalid: %s", e.Code, e.Reason)
}

// InsufficientStockError names every product that blocked the order.
type InsufficientStockError struct {
	Shortfalls []StockShortfall
}

type StockShortfall struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Required    int    `json:"required"`
	Available   int    `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	names := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		n := s.ProductName
		if n == "" {
			n = s.ProductID
		}
		names = append(names, n)
	}
	return "insufficient stock for: " + strings.Join(names, ", ")
}

// StockReservationError reports a partial reservation failure. All
// reservations taken for the order have already been rolled back.
type StockReservationError struct {
	OrderID   string
	ProductID string
}

func (e *StockReservationError) Error() string {
	return fmt.Sprintf("reservation failed for product %s on order %s", e.ProductID, e.OrderID)
}
