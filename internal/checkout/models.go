package checkout

import "time"

// Product carries the catalog fields the checkout flow needs. StockCount is
// nil for untracked products, which are exempt from reservation accounting.
type Product struct {
	ID             string
	Name           string
	StockCount     *int
	PriceCents     int
	SalePriceCents *int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EffectivePriceCents is the sale price when one is set, else the list price.
func (p Product) EffectivePriceCents() int {
	if p.SalePriceCents != nil {
		return *p.SalePriceCents
	}
	return p.PriceCents
}

// Tracked reports whether the product participates in stock accounting.
func (p Product) Tracked() bool { return p.StockCount != nil }

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Address struct {
	ID       string `json:"id,omitempty"`
	Street   string `json:"street,omitempty"`
	Suburb   string `json:"suburb"`
	Postcode string `json:"postcode"`
	State    string `json:"state,omitempty"`
}

type DeliveryZone struct {
	ID                         int
	Name                       string
	Suburbs                    []string
	DeliveryFeeCents           int
	FreeDeliveryThresholdCents *int
	EstimatedDays              int
	IsActive                   bool
}

type PromoType string

const (
	PromoPercentage PromoType = "percentage"
	PromoFixed      PromoType = "fixed"
)

type Promotion struct {
	Code          string
	Type          PromoType
	Value         int // percent for percentage, cents for fixed
	MinOrderCents int
	MaxUses       *int
	UsesCount     int
	StartDate     time.Time
	EndDate       time.Time
	IsActive      bool
}

type PaymentMethod string

const (
	MethodCard           PaymentMethod = "card"
	MethodWallet         PaymentMethod = "wallet"
	MethodDeferred       PaymentMethod = "deferred"
	MethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

type Order struct {
	ID               string
	UserID           string
	Status           Status
	SubtotalCents    int
	DeliveryFeeCents int
	DiscountCents    int
	TotalCents       int
	Currency         string
	PaymentMethod    PaymentMethod
	AddressID        string
	DeliveryZoneID   *int
	PromotionCode    string
	Notes            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderItem snapshots name and price at order time so historical orders stay
// accurate when the catalog changes.
type OrderItem struct {
	ID             string
	OrderID        string
	ProductID      string
	ProductName    string
	Quantity       int
	UnitPriceCents int
	TotalCents     int
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationReleased  ReservationStatus = "released"
	ReservationConfirmed ReservationStatus = "confirmed"
)

// Reservation is a time-bounded hold on product stock for one order. The
// durable row is the source of truth; a matching Redis entry with the same
// expiry serves fast lookups.
type Reservation struct {
	ProductID string            `json:"product_id"`
	OrderID   string            `json:"order_id"`
	Quantity  int               `json:"quantity"`
	Status    ReservationStatus `json:"-"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"-"`
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type Payment struct {
	ID              string
	OrderID         string
	Gateway         string
	Status          PaymentStatus
	AmountCents     int
	Currency        string
	TransactionID   string
	GatewayResponse string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

type Invoice struct {
	ID               string
	OrderID          string
	Number           string
	SubtotalCents    int
	DeliveryFeeCents int
	DiscountCents    int
	TotalCents       int
	Currency         string
	Status           InvoiceStatus
	IssueDate        time.Time
	DueDate          time.Time
}
