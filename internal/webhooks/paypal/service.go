package paypalwebhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dropone-app/dropone-backend/internal/payments"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/metrics"
	"github.com/dropone-app/dropone-backend/pkg/paypal"
)

// Notification types this service acts on.
const (
	EventCheckoutOrderApproved   = "CHECKOUT.ORDER.APPROVED"
	EventPaymentCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
)

type ordersAPI interface {
	GetOrder(ctx context.Context, orderID string) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.Order, error)
}

type ingester interface {
	Ingest(ctx context.Context, payment payments.PaymentCompleted) (*payments.IngestResult, error)
}

type ServiceParams struct {
	PayPal   ordersAPI
	Payments ingester
	Logger   *logger.Logger
	Metrics  *metrics.DomainMetrics
}

// Service authenticates PayPal notifications by re-reading the order from
// PayPal, captures approved orders and forwards completed captures.
type Service struct {
	paypal   ordersAPI
	payments ingester
	logg     *logger.Logger
	metrics  *metrics.DomainMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.PayPal == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "paypal client required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		paypal:   params.PayPal,
		payments: params.Payments,
		logg:     logg,
		metrics:  params.Metrics,
	}, nil
}

// Notification is the subset of a PayPal webhook body used for routing.
type Notification struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// OrderID resolves the PayPal order the notification refers to.
func (n Notification) OrderID() string {
	switch n.EventType {
	case EventCheckoutOrderApproved:
		return strings.TrimSpace(n.Resource.ID)
	case EventPaymentCaptureCompleted:
		return strings.TrimSpace(n.Resource.SupplementaryData.RelatedIDs.OrderID)
	}
	return ""
}

// HandleWebhook routes a raw notification. Unknown event types are ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte) (payments.Outcome, error) {
	var note Notification
	if err := json.Unmarshal(payload, &note); err != nil {
		s.metrics.WebhookEvent(string(enums.PaymentProviderPayPal), metrics.OutcomeRejected)
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode paypal notification")
	}
	ctx = s.logg.WithEvent(ctx, string(enums.PaymentProviderPayPal), note.ID)

	orderID := note.OrderID()
	if orderID == "" {
		s.metrics.WebhookEvent(string(enums.PaymentProviderPayPal), metrics.OutcomeIgnored)
		s.logg.Debug(s.logg.WithField(ctx, "event_type", note.EventType), "paypal event ignored")
		return payments.OutcomeIgnored, nil
	}
	return s.ConfirmOrder(ctx, orderID)
}

// ConfirmOrder fetches the order from PayPal, captures it when approved and
// ingests it once captured. The buyer-return capture path and both webhook
// types converge here and dedupe on the PayPal order id.
func (s *Service) ConfirmOrder(ctx context.Context, orderID string) (payments.Outcome, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "paypal order id is required")
	}
	ctx = s.logg.WithField(ctx, "paypal_order_id", orderID)

	order, err := s.paypal.GetOrder(ctx, orderID)
	if err != nil {
		return "", s.verificationError(err)
	}

	if order.Status == paypal.OrderStatusApproved {
		captured, err := s.paypal.CaptureOrder(ctx, orderID)
		if paypal.StatusCode(err) == http.StatusUnprocessableEntity {
			// lost the capture race against the other confirmation path
			captured, err = s.paypal.GetOrder(ctx, orderID)
		}
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "capture paypal order")
		}
		order = captured
	}
	if !order.Captured() {
		s.metrics.WebhookEvent(string(enums.PaymentProviderPayPal), metrics.OutcomeIgnored)
		s.logg.Info(s.logg.WithField(ctx, "paypal_status", order.Status), "paypal order not captured yet")
		return payments.OutcomeIgnored, nil
	}

	payment, err := Normalize(order)
	if err != nil {
		return "", err
	}
	if _, err := s.payments.Ingest(ctx, *payment); err != nil {
		if payments.IsDuplicateEvent(err) {
			return payments.OutcomeDuplicate, nil
		}
		return "", err
	}
	return payments.OutcomeCreated, nil
}

// verificationError fails closed when PayPal does not know the order.
func (s *Service) verificationError(err error) error {
	switch paypal.StatusCode(err) {
	case http.StatusNotFound, http.StatusBadRequest, http.StatusUnprocessableEntity:
		s.metrics.WebhookEvent(string(enums.PaymentProviderPayPal), metrics.OutcomeRejected)
		return &payments.SignatureVerificationError{Provider: enums.PaymentProviderPayPal, Err: err}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch paypal order")
}

// Normalize maps a captured PayPal order onto PaymentCompleted.
func Normalize(order *paypal.Order) (*payments.PaymentCompleted, error) {
	if order == nil || !order.Captured() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paypal order is not captured")
	}
	slug := order.StoreSlug()
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paypal order has no store slug")
	}
	name := order.PayerName
	if name == "" {
		name = order.ShippingAddress.Name
	}
	return &payments.PaymentCompleted{
		Provider:        enums.PaymentProviderPayPal,
		EventID:         order.ID,
		ProviderRef:     order.ID,
		StoreSlug:       slug,
		AmountPaidCents: order.AmountCents,
		Currency:        order.Currency,
		Customer:        payments.Customer{Email: order.PayerEmail, Name: name},
		ShippingAddress: order.ShippingAddress,
	}, nil
}
