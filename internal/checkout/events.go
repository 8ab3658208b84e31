package checkout

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated  = "OrderCreated"
	EventStatusChanged = "OrderStatusChanged"
	EventStockReleased = "StockReleased"
)

// Envelope wraps every published event. CorrelationID is the order id so all
// events for one order land on the same partition, in order.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID       string     `json:"order_id"`
	UserID        string     `json:"user_id"`
	Items         []CartItem `json:"items"`
	SubtotalCents int        `json:"subtotal_cents"`
	TotalCents    int        `json:"total_cents"`
	PromotionCode string     `json:"promotion_code,omitempty"`
}

type StatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

type StockReleasedPayload struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"` // EXPIRED | CANCELLED
}
