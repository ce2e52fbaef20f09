package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/types"
)

// Order is a paid customer order with its monetary split and fulfillment state.
type Order struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderRef         string                `gorm:"column:order_id;type:text;not null;uniqueIndex"`
	StoreSlug        string                `gorm:"column:store_slug;type:text;not null;index"`
	SellerEmail      string                `gorm:"column:seller_email;type:text;not null;index"`
	ProductID        string                `gorm:"column:product_id;type:text;not null"`
	ProductVariantID string                `gorm:"column:product_variant_id;type:text"`
	ProductName      string                `gorm:"column:product_name;type:text;not null"`
	Quantity         int                   `gorm:"column:quantity;not null;default:1"`
	CustomerEmail    *string               `gorm:"column:customer_email"`
	CustomerName     *string               `gorm:"column:customer_name"`
	ShippingAddress  types.ShippingAddress `gorm:"column:shipping_address;type:jsonb"`

	Currency          string `gorm:"column:currency;type:text;not null;default:'EUR'"`
	AmountPaidCents   int64  `gorm:"column:amount_paid_cents;not null;check:chk_orders_amount_paid,amount_paid_cents >= 0"`
	SupplierCostCents int64  `gorm:"column:supplier_cost_cents;not null;check:chk_orders_supplier_cost,supplier_cost_cents >= 0"`
	CommissionCents   int64  `gorm:"column:commission_cents;not null;check:chk_orders_commission,commission_cents >= 0"`
	SellerMarginCents int64  `gorm:"column:seller_margin_cents;not null;check:chk_orders_seller_margin,seller_margin_cents >= 0"`

	Status           enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'pending';index"`
	PaymentProvider  enums.PaymentProvider `gorm:"column:payment_provider;type:text;not null"`
	PaymentSessionID *string               `gorm:"column:payment_session_id"`
	PayPalOrderID    *string               `gorm:"column:paypal_order_id"`
	ProviderEventID  string                `gorm:"column:provider_event_id;type:text;not null"`

	SupplierOrderID     *string    `gorm:"column:supplier_order_id;index"`
	TrackingNumber      *string    `gorm:"column:tracking_number"`
	Carrier             *string    `gorm:"column:carrier"`
	TrackingURL         *string    `gorm:"column:tracking_url"`
	Error               *string    `gorm:"column:error"`
	FulfillmentAttempts int        `gorm:"column:fulfillment_attempts;not null;default:0"`
	ShippedAt           *time.Time `gorm:"column:shipped_at"`
	DeliveredAt         *time.Time `gorm:"column:delivered_at"`
	RefundedAt          *time.Time `gorm:"column:refunded_at"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name.
func (Order) TableName() string { return "orders" }

// BeforeCreate assigns a primary key when the caller did not.
func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// SplitBalances reports whether the monetary split adds up to the amount paid.
func (o Order) SplitBalances() bool {
	return o.AmountPaidCents == o.SupplierCostCents+o.CommissionCents+o.SellerMarginCents
}

// ProviderReference returns the provider-side payment correlation id.
func (o Order) ProviderReference() string {
	switch o.PaymentProvider {
	case enums.PaymentProviderStripe:
		if o.PaymentSessionID != nil {
			return *o.PaymentSessionID
		}
	case enums.PaymentProviderPayPal:
		if o.PayPalOrderID != nil {
			return *o.PayPalOrderID
		}
	}
	return ""
}
