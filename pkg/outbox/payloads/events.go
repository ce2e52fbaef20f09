package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/dropone-app/dropone-backend/pkg/enums"
)

// OrderPaidEvent is emitted when a verified payment created an order and credited the seller.
type OrderPaidEvent struct {
	OrderID           uuid.UUID             `json:"order_id"`
	OrderRef          string                `json:"order_ref"`
	StoreSlug         string                `json:"store_slug"`
	SellerEmail       string                `json:"seller_email"`
	Provider          enums.PaymentProvider `json:"provider"`
	AmountPaidCents   int64                 `json:"amount_paid_cents"`
	SupplierCostCents int64                 `json:"supplier_cost_cents"`
	CommissionCents   int64                 `json:"commission_cents"`
	SellerMarginCents int64                 `json:"seller_margin_cents"`
	Currency          string                `json:"currency"`
	PaidAt            time.Time             `json:"paid_at"`
}

// OrderStatusChangedEvent reports a fulfillment transition.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	OrderRef       string            `json:"order_ref"`
	SellerEmail    string            `json:"seller_email"`
	From           enums.OrderStatus `json:"from"`
	To             enums.OrderStatus `json:"to"`
	TrackingNumber string            `json:"tracking_number,omitempty"`
	Carrier        string            `json:"carrier,omitempty"`
	Error          string            `json:"error,omitempty"`
	ChangedAt      time.Time         `json:"changed_at"`
}

// OrderRefundedEvent reports a refund and how much of the margin could be recovered.
type OrderRefundedEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	OrderRef         string    `json:"order_ref"`
	SellerEmail      string    `json:"seller_email"`
	DebitedCents     int64     `json:"debited_cents"`
	UnrecoveredCents int64     `json:"unrecovered_cents"`
	RefundedAt       time.Time `json:"refunded_at"`
}

// PayoutSettledEvent is shared by payout_completed and payout_failed.
type PayoutSettledEvent struct {
	PayoutID      uuid.UUID          `json:"payout_id"`
	PayoutRef     string             `json:"payout_ref"`
	SellerEmail   string             `json:"seller_email"`
	AmountCents   int64              `json:"amount_cents"`
	Method        enums.PayoutMethod `json:"method"`
	Status        enums.PayoutStatus `json:"status"`
	RailReference string             `json:"rail_reference,omitempty"`
	Error         string             `json:"error,omitempty"`
	SettledAt     time.Time          `json:"settled_at"`
}
