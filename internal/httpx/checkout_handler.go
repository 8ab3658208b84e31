package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/zambezimeats/checkout/internal/checkout"
	"github.com/zambezimeats/checkout/internal/delivery"
	"github.com/zambezimeats/checkout/internal/orders"
	"github.com/zambezimeats/checkout/internal/payment"
	"github.com/zambezimeats/checkout/internal/redisx"
)

// OrderService is the checkout surface the handler consumes.
type OrderService interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (checkout.Order, []checkout.OrderItem, error)
	Cancel(ctx context.Context, orderID string) (checkout.Order, error)
	GetOrder(ctx context.Context, orderID string) (checkout.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]checkout.OrderItem, error)
}

type PaymentService interface {
	Process(ctx context.Context, orderID string) (payment.Result, error)
	ConfirmPayment(ctx context.Context, orderID, reference string) (payment.Result, error)
}

type ZoneResolver interface {
	Resolve(ctx context.Context, postcode, suburb string) (checkout.DeliveryZone, error)
}

type ZoneGetter interface {
	GetZone(ctx context.Context, id int) (checkout.DeliveryZone, error)
}

type PromoValidator interface {
	Validate(ctx context.Context, code string, subtotalCents int) (int, error)
}

type InvoiceService interface {
	ForOrder(ctx context.Context, orderID string) (checkout.Invoice, error)
}

type CheckoutHandler struct {
	Orders   OrderService
	Payments PaymentService
	Zones    ZoneResolver
	ZoneRepo ZoneGetter
	Promos   PromoValidator
	Invoices InvoiceService
	Redis    *redis.Client
	Log      logrus.FieldLogger
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/checkout/address/validate", h.validateAddress)
	r.Post("/checkout/delivery-fee", h.calculateDeliveryFee)
	r.Post("/checkout/promo/validate", h.validatePromo)
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/orders/{id}/payment", h.processPayment)
	r.Post("/orders/{id}/payment/confirm", h.confirmPayment)
	r.Get("/orders/{id}/invoice", h.getInvoice)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type failBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// writeErr maps the error taxonomy onto stable machine codes. Persistence
// and other unexpected failures become a generic 500 without internal detail.
func (h *CheckoutHandler) writeErr(w http.ResponseWriter, err error) {
	var promoErr *checkout.PromoInvalidError
	var stockErr *checkout.InsufficientStockError
	var resErr *checkout.StockReservationError

	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		writeJSON(w, http.StatusUnprocessableEntity, failBody{Error: err.Error(), Code: "empty_cart"})
	case errors.Is(err, checkout.ErrAddressRequired):
		writeJSON(w, http.StatusBadRequest, failBody{Error: err.Error(), Code: "address_required"})
	case errors.Is(err, checkout.ErrAddressNotDeliverable):
		writeJSON(w, http.StatusUnprocessableEntity, failBody{Error: err.Error(), Code: "address_not_deliverable"})
	case errors.Is(err, checkout.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, failBody{Error: err.Error(), Code: "invalid_quantity"})
	case errors.Is(err, checkout.ErrUnknownPaymentMethod):
		writeJSON(w, http.StatusBadRequest, failBody{Error: err.Error(), Code: "unknown_payment_method"})
	case errors.Is(err, checkout.ErrOrderNotFound), errors.Is(err, checkout.ErrProductNotFound),
		errors.Is(err, checkout.ErrPaymentNotFound), errors.Is(err, delivery.ErrZoneNotFound):
		writeJSON(w, http.StatusNotFound, failBody{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, checkout.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, failBody{Error: err.Error(), Code: "invalid_transition"})
	case errors.Is(err, checkout.ErrInvoiceUnavailable):
		writeJSON(w, http.StatusConflict, failBody{Error: err.Error(), Code: "invoice_unavailable"})
	case errors.As(err, &promoErr):
		writeJSON(w, http.StatusUnprocessableEntity, failBody{
			Error: promoErr.Error(), Code: "promo_" + string(promoErr.Reason),
		})
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, failBody{
			Error: stockErr.Error(), Code: "insufficient_stock", Details: stockErr.Shortfalls,
		})
	case errors.As(err, &resErr):
		writeJSON(w, http.StatusConflict, failBody{Error: resErr.Error(), Code: "stock_reservation_failed"})
	case errors.Is(err, checkout.ErrPaymentGateway):
		writeJSON(w, http.StatusBadGateway, failBody{Error: "payment gateway unavailable, order is retryable", Code: "payment_gateway"})
	default:
		h.Log.WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, failBody{Error: "internal error", Code: "internal_error"})
	}
}

type validateAddressReq struct {
	Postcode string `json:"postcode"`
	Suburb   string `json:"suburb"`
}

func (h *CheckoutHandler) validateAddress(w http.ResponseWriter, r *http.Request) {
	var req validateAddressReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failBody{Error: "invalid json", Code: "invalid_request_body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	zone, err := h.Zones.Resolve(ctx, req.Postcode, req.Suburb)
	if errors.Is(err, checkout.ErrAddressNotDeliverable) {
		writeJSON(w, http.StatusOK, map[string]any{
			"delivers": false,
			"message":  "sorry, we do not deliver to that area yet",
		})
		return
	}
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"delivers": true,
		"zone": map[string]any{
			"id":             zone.ID,
			"name":           zone.Name,
			"estimated_days": zone.EstimatedDays,
		},
		"message": fmt.Sprintf("delivered by %s", zone.Name),
	})
}

type deliveryFeeReq struct {
	ZoneID        int `json:"zone_id"`
	SubtotalCents int `json:"subtotal_cents"`
}

func (h *CheckoutHandler) calculateDeliveryFee(w http.ResponseWriter, r *http.Request) {
	var req deliveryFeeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failBody{Error: "invalid json", Code: "invalid_request_body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	zone, err := h.ZoneRepo.GetZone(ctx, req.ZoneID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	q := delivery.FeeFor(zone, req.SubtotalCents)
	writeJSON(w, http.StatusOK, map[string]any{
		"fee_cents":      q.FeeCents,
		"fee_formatted":  formatCents(q.FeeCents),
		"is_free":        q.IsFree,
		"estimated_days": q.EstimatedDays,
		"estimate":       q.Estimate,
	})
}

type validatePromoReq struct {
	Code          string `json:"code"`
	SubtotalCents int    `json:"subtotal_cents"`
}

func (h *CheckoutHandler) validatePromo(w http.ResponseWriter, r *http.Request) {
	var req validatePromoReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failBody{Error: "invalid json", Code: "invalid_request_body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	discount, err := h.Promos.Validate(ctx, req.Code, req.SubtotalCents)
	var promoErr *checkout.PromoInvalidError
	if errors.As(err, &promoErr) {
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":   false,
			"reason":  promoErr.Reason,
			"message": promoErr.Error(),
		})
		return
	}
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":          true,
		"discount_cents": discount,
		"message":        fmt.Sprintf("promo applied, you save %s", formatCents(discount)),
	})
}

type createOrderReq struct {
	UserID        string              `json:"user_id"`
	Items         []checkout.CartItem `json:"items"`
	Address       checkout.Address    `json:"address"`
	PaymentMethod string              `json:"payment_method"`
	PromoCode     string              `json:"promo_code,omitempty"`
	Notes         string              `json:"notes,omitempty"`
}

func (h *CheckoutHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failBody{Error: "invalid json", Code: "invalid_request_body"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, failBody{Error: "user_id required", Code: "missing_required_field"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, items, err := h.Orders.CreateOrder(ctx, orders.CreateOrderInput{
		UserID:        req.UserID,
		Items:         req.Items,
		Address:       req.Address,
		PaymentMethod: checkout.PaymentMethod(req.PaymentMethod),
		PromoCode:     req.PromoCode,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"order":   orderBody(order),
		"items":   itemsBody(items),
	})
}

func (h *CheckoutHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	order, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	items, err := h.Orders.GetOrderItems(ctx, orderID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   orderBody(order),
		"items":   itemsBody(items),
	})
}

// getOrderStatus serves the polling clients. The cached entry and the DB
// fallback produce the same {"status": ...} body.
func (h *CheckoutHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	order, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": order.Status})
}

func (h *CheckoutHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Orders.Cancel(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": orderBody(order)})
}

func (h *CheckoutHandler) processPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	res, err := h.Payments.Process(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	body := map[string]any{
		"success": true,
		"status":  res.Payment.Status,
		"order":   orderBody(res.Order),
	}
	if res.ClientSecret != "" {
		body["client_secret"] = res.ClientSecret
	}
	writeJSON(w, http.StatusOK, body)
}

type confirmPaymentReq struct {
	Reference string `json:"reference"`
}

func (h *CheckoutHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failBody{Error: "invalid json", Code: "invalid_request_body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	res, err := h.Payments.ConfirmPayment(ctx, chi.URLParam(r, "id"), req.Reference)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": res.Payment.Status == checkout.PaymentCompleted,
		"status":  res.Payment.Status,
		"order":   orderBody(res.Order),
	})
}

func (h *CheckoutHandler) getInvoice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	inv, err := h.Invoices.ForOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"invoice": map[string]any{
			"number":          inv.Number,
			"order_id":        inv.OrderID,
			"subtotal_cents":  inv.SubtotalCents,
			"delivery_cents":  inv.DeliveryFeeCents,
			"discount_cents":  inv.DiscountCents,
			"total_cents":     inv.TotalCents,
			"total_formatted": formatCents(inv.TotalCents),
			"currency":        inv.Currency,
			"status":          inv.Status,
			"issue_date":      inv.IssueDate,
			"due_date":        inv.DueDate,
		},
	})
}

func orderBody(o checkout.Order) map[string]any {
	return map[string]any{
		"id":              o.ID,
		"status":          o.Status,
		"subtotal_cents":  o.SubtotalCents,
		"delivery_cents":  o.DeliveryFeeCents,
		"discount_cents":  o.DiscountCents,
		"total_cents":     o.TotalCents,
		"total_formatted": formatCents(o.TotalCents),
		"currency":        o.Currency,
		"payment_method":  o.PaymentMethod,
		"promotion_code":  o.PromotionCode,
		"created_at":      o.CreatedAt,
	}
}

func itemsBody(items []checkout.OrderItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]any{
			"product_id":       it.ProductID,
			"product_name":     it.ProductName,
			"quantity":         it.Quantity,
			"unit_price_cents": it.UnitPriceCents,
			"total_cents":      it.TotalCents,
		})
	}
	return out
}

func formatCents(c int) string {
	return fmt.Sprintf("$%d.%02d", c/100, c%100)
}
