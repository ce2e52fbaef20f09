package orders

import (
	"time"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
)

// Tracking carries shipment details reported by the supplier.
type Tracking struct {
	Number  string
	Carrier string
	URL     string
}

// OrderSummary is the seller-facing view of an order.
type OrderSummary struct {
	OrderID           string                `json:"order_id"`
	StoreSlug         string                `json:"store_slug"`
	ProductName       string                `json:"product_name"`
	Status            enums.OrderStatus     `json:"status"`
	PaymentProvider   enums.PaymentProvider `json:"payment_provider"`
	AmountPaidCents   int64                 `json:"amount_paid_cents"`
	SupplierCostCents int64                 `json:"supplier_cost_cents"`
	CommissionCents   int64                 `json:"commission_cents"`
	SellerMarginCents int64                 `json:"seller_margin_cents"`
	Currency          string                `json:"currency"`
	CustomerName      *string               `json:"customer_name,omitempty"`
	TrackingNumber    *string               `json:"tracking_number,omitempty"`
	Carrier           *string               `json:"carrier,omitempty"`
	TrackingURL       *string               `json:"tracking_url,omitempty"`
	Error             *string               `json:"error,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	ShippedAt         *time.Time            `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time            `json:"delivered_at,omitempty"`
	RefundedAt        *time.Time            `json:"refunded_at,omitempty"`
}

// OrderList is one page of seller orders.
type OrderList struct {
	Items  []OrderSummary `json:"items"`
	Cursor string         `json:"cursor"`
}

// RefundResult reports the refunded order and the margin recovered from the seller.
type RefundResult struct {
	Order            *models.Order `json:"-"`
	OrderID          string        `json:"order_id"`
	DebitedCents     int64         `json:"debited_cents"`
	UnrecoveredCents int64         `json:"unrecovered_cents"`
}

// ToSummary converts an order row for API responses.
func ToSummary(o models.Order) OrderSummary {
	return OrderSummary{
		OrderID:           o.OrderRef,
		StoreSlug:         o.StoreSlug,
		ProductName:       o.ProductName,
		Status:            o.Status,
		PaymentProvider:   o.PaymentProvider,
		AmountPaidCents:   o.AmountPaidCents,
		SupplierCostCents: o.SupplierCostCents,
		CommissionCents:   o.CommissionCents,
		SellerMarginCents: o.SellerMarginCents,
		Currency:          o.Currency,
		CustomerName:      o.CustomerName,
		TrackingNumber:    o.TrackingNumber,
		Carrier:           o.Carrier,
		TrackingURL:       o.TrackingURL,
		Error:             o.Error,
		CreatedAt:         o.CreatedAt,
		ShippedAt:         o.ShippedAt,
		DeliveredAt:       o.DeliveredAt,
		RefundedAt:        o.RefundedAt,
	}
}
