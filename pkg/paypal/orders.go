package paypal

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/money"
	"github.com/dropone-app/dropone-backend/pkg/types"
)

// Order statuses returned by the Orders API.
const (
	OrderStatusCreated   = "CREATED"
	OrderStatusApproved  = "APPROVED"
	OrderStatusCompleted = "COMPLETED"
)

const (
	captureStatusCompleted = "COMPLETED"
	customIDSeparator      = "|"
)

// Money mirrors the PayPal amount object.
type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// Order is the normalized view of a PayPal order.
type Order struct {
	ID              string
	Status          string
	CustomID        string
	AmountCents     int64
	Currency        string
	CaptureID       string
	CaptureStatus   string
	PayerEmail      string
	PayerName       string
	ShippingAddress types.ShippingAddress
}

// StoreSlug extracts the store slug from the order custom_id.
func (o Order) StoreSlug() string {
	slug, _, _ := strings.Cut(o.CustomID, customIDSeparator)
	return strings.TrimSpace(slug)
}

// Captured reports whether the order holds a completed capture.
func (o Order) Captured() bool {
	return o.Status == OrderStatusCompleted && o.CaptureStatus == captureStatusCompleted
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		CustomID    string `json:"custom_id"`
		Amount      Money  `json:"amount"`
		Shipping    struct {
			Name struct {
				FullName string `json:"full_name"`
			} `json:"name"`
			Address struct {
				Line1       string `json:"address_line_1"`
				Line2       string `json:"address_line_2"`
				City        string `json:"admin_area_2"`
				State       string `json:"admin_area_1"`
				PostalCode  string `json:"postal_code"`
				CountryCode string `json:"country_code"`
			} `json:"address"`
		} `json:"shipping"`
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount Money  `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Payer struct {
		EmailAddress string `json:"email_address"`
		Name         struct {
			GivenName string `json:"given_name"`
			Surname   string `json:"surname"`
		} `json:"name"`
	} `json:"payer"`
	Links []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

func (r orderResponse) normalize() (*Order, error) {
	order := &Order{
		ID:         r.ID,
		Status:     r.Status,
		PayerEmail: strings.TrimSpace(r.Payer.EmailAddress),
		PayerName:  strings.TrimSpace(r.Payer.Name.GivenName + " " + r.Payer.Name.Surname),
	}
	if len(r.PurchaseUnits) == 0 {
		return order, nil
	}

	unit := r.PurchaseUnits[0]
	order.CustomID = unit.CustomID
	if order.CustomID == "" {
		order.CustomID = unit.ReferenceID
	}
	order.Currency = strings.ToUpper(unit.Amount.CurrencyCode)
	if unit.Amount.Value != "" {
		cents, err := money.ParseCents(unit.Amount.Value)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse paypal order amount")
		}
		order.AmountCents = cents
	}
	if captures := unit.Payments.Captures; len(captures) > 0 {
		capture := captures[len(captures)-1]
		order.CaptureID = capture.ID
		order.CaptureStatus = capture.Status
		if capture.Amount.Value != "" {
			cents, err := money.ParseCents(capture.Amount.Value)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse paypal capture amount")
			}
			order.AmountCents = cents
			order.Currency = strings.ToUpper(capture.Amount.CurrencyCode)
		}
	}

	addr := unit.Shipping.Address
	order.ShippingAddress = types.ShippingAddress{
		Name:        unit.Shipping.Name.FullName,
		Line1:       addr.Line1,
		Line2:       addr.Line2,
		City:        addr.City,
		State:       addr.State,
		PostalCode:  addr.PostalCode,
		CountryCode: strings.ToUpper(addr.CountryCode),
	}
	return order, nil
}

// GetOrder fetches an order by id. A successful fetch is how webhook
// notifications are authenticated.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paypal client not configured")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paypal order id is required")
	}

	var resp orderResponse
	if err := c.do(ctx, "get order", http.MethodGet, "v2/checkout/orders/"+url.PathEscape(id), nil, &resp, nil); err != nil {
		return nil, err
	}
	return resp.normalize()
}

// CaptureOrder captures an approved order. PayPal-Request-Id makes repeated
// captures of the same order idempotent on PayPal's side.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*Order, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paypal client not configured")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paypal order id is required")
	}

	var resp orderResponse
	headers := map[string]string{"PayPal-Request-Id": "capture-" + id}
	if err := c.do(ctx, "capture order", http.MethodPost, "v2/checkout/orders/"+url.PathEscape(id)+"/capture", struct{}{}, &resp, headers); err != nil {
		return nil, err
	}
	return resp.normalize()
}

// CreateOrderRequest describes a single-item order for a store.
type CreateOrderRequest struct {
	StoreSlug   string
	Description string
	AmountCents int64
	ReturnURL   string
	CancelURL   string
	BrandName   string
}

// CreatedOrder carries the id and the buyer approval link.
type CreatedOrder struct {
	ID          string
	ApproveURL  string
	OrderStatus string
}

// CreateOrder opens a CAPTURE-intent order whose custom_id carries the store slug.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreatedOrder, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paypal client not configured")
	}
	if strings.TrimSpace(req.StoreSlug) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store slug is required")
	}
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.StoreSlug,
			"custom_id":    req.StoreSlug,
			"description":  truncate(req.Description, 127),
			"amount": Money{
				CurrencyCode: c.currency,
				Value:        money.FormatCents(req.AmountCents),
			},
		}},
		"application_context": map[string]any{
			"brand_name":          truncate(req.BrandName, 127),
			"shipping_preference": "GET_FROM_FILE",
			"user_action":         "PAY_NOW",
			"return_url":          req.ReturnURL,
			"cancel_url":          req.CancelURL,
		},
	}

	var resp orderResponse
	if err := c.do(ctx, "create order", http.MethodPost, "v2/checkout/orders", payload, &resp, nil); err != nil {
		return nil, err
	}

	created := &CreatedOrder{ID: resp.ID, OrderStatus: resp.Status}
	for _, link := range resp.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			created.ApproveURL = link.Href
			break
		}
	}
	return created, nil
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
