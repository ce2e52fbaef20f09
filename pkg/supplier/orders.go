package supplier

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/types"
)

// Supplier order statuses reported by CJ.
const (
	StatusCreated    = "CREATED"
	StatusUnpaid     = "UNPAID"
	StatusUnshipped  = "UNSHIPPED"
	StatusShipped    = "SHIPPED"
	StatusDelivered  = "DELIVERED"
	StatusCancelled  = "CANCELLED"
	StatusInTransit  = "IN_TRANSIT"
	StatusProcessing = "PROCESSING"
)

// OrderRequest is what the bridge sends for one storefront order.
type OrderRequest struct {
	// OrderNumber is our public order ref; CJ rejects duplicates so retries
	// cannot create two supplier orders.
	OrderNumber   string
	VariantID     string
	Quantity      int
	CustomerEmail string
	Address       types.ShippingAddress
}

// OrderResult identifies the created supplier order.
type OrderResult struct {
	SupplierOrderID string
}

// OrderDetail is the supplier view of an order's progress.
type OrderDetail struct {
	SupplierOrderID string
	Status          string
	TrackingNumber  string
	Carrier         string
	TrackingURL     string
}

// Delivered reports whether the supplier considers the parcel delivered.
func (d OrderDetail) Delivered() bool {
	return strings.EqualFold(d.Status, StatusDelivered)
}

// CreateOrder places an order with the supplier.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "supplier client not configured")
	}
	if strings.TrimSpace(req.OrderNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	if strings.TrimSpace(req.VariantID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if err := req.Address.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	addr := req.Address
	payload := map[string]any{
		"orderNumber":          req.OrderNumber,
		"shippingZip":          addr.PostalCode,
		"shippingCountryCode":  strings.ToUpper(addr.CountryCode),
		"shippingProvince":     addr.State,
		"shippingCity":         addr.City,
		"shippingAddress":      addr.Line1,
		"shippingAddress2":     addr.Line2,
		"shippingCustomerName": addr.Name,
		"shippingPhone":        addr.Phone,
		"email":                req.CustomerEmail,
		"logisticName":         c.logisticName,
		"fromCountryCode":      c.fromCountryCode,
		"payType":              c.payType,
		"products": []map[string]any{{
			"vid":      req.VariantID,
			"quantity": quantity,
		}},
	}

	var data struct {
		OrderID string `json:"orderId"`
	}
	if err := c.call(ctx, "create order", http.MethodPost, "shopping/order/createOrderV2", payload, &data); err != nil {
		return nil, err
	}
	if data.OrderID == "" {
		return nil, &APIError{Op: "create order", Message: "response missing orderId"}
	}
	return &OrderResult{SupplierOrderID: data.OrderID}, nil
}

// GetOrderDetail fetches status and tracking for a supplier order.
func (c *Client) GetOrderDetail(ctx context.Context, supplierOrderID string) (*OrderDetail, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "supplier client not configured")
	}
	id := strings.TrimSpace(supplierOrderID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier order id is required")
	}

	var data struct {
		OrderID      string `json:"orderId"`
		OrderStatus  string `json:"orderStatus"`
		TrackNumber  string `json:"trackNumber"`
		LogisticName string `json:"logisticName"`
		TrackingURL  string `json:"trackingUrl"`
	}
	path := "shopping/order/getOrderDetail?orderId=" + url.QueryEscape(id)
	if err := c.call(ctx, "get order detail", http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &OrderDetail{
		SupplierOrderID: firstNonEmpty(data.OrderID, id),
		Status:          strings.ToUpper(strings.TrimSpace(data.OrderStatus)),
		TrackingNumber:  strings.TrimSpace(data.TrackNumber),
		Carrier:         strings.TrimSpace(data.LogisticName),
		TrackingURL:     strings.TrimSpace(data.TrackingURL),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
