package paypalwebhook

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropone-app/dropone-backend/internal/payments"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/paypal"
	"github.com/dropone-app/dropone-backend/pkg/types"
)

type stubPayPal struct {
	orders     map[string]*paypal.Order
	getErr     error
	captureErr error
	captured   []string
}

func (s *stubPayPal) GetOrder(_ context.Context, id string) (*paypal.Order, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	order, ok := s.orders[id]
	if !ok {
		return nil, &paypal.APIError{Op: "get order", StatusCode: http.StatusNotFound}
	}
	copied := *order
	return &copied, nil
}

func (s *stubPayPal) CaptureOrder(_ context.Context, id string) (*paypal.Order, error) {
	s.captured = append(s.captured, id)
	if s.captureErr != nil {
		return nil, s.captureErr
	}
	order := s.orders[id]
	order.Status = paypal.OrderStatusCompleted
	order.CaptureID = "CAP-" + id
	order.CaptureStatus = "COMPLETED"
	copied := *order
	return &copied, nil
}

type stubIngester struct {
	calls []payments.PaymentCompleted
	seen  map[string]bool
}

func (s *stubIngester) Ingest(_ context.Context, payment payments.PaymentCompleted) (*payments.IngestResult, error) {
	s.calls = append(s.calls, payment)
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[payment.EventID] {
		return nil, &payments.DuplicateEventError{Provider: payment.Provider, EventID: payment.EventID}
	}
	s.seen[payment.EventID] = true
	return &payments.IngestResult{}, nil
}

func approvedOrder(id string) *paypal.Order {
	return &paypal.Order{
		ID:          id,
		Status:      paypal.OrderStatusApproved,
		CustomID:    "glow-lamp|v1",
		AmountCents: 5000,
		Currency:    "EUR",
		PayerEmail:  "buyer@example.com",
		PayerName:   "Ada Buyer",
		ShippingAddress: types.ShippingAddress{
			Name: "Ada Buyer", Line1: "1 Rue de Rivoli", City: "Paris", PostalCode: "75001", CountryCode: "FR",
		},
	}
}

func newService(t *testing.T, api *stubPayPal, ingest *stubIngester) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{PayPal: api, Payments: ingest})
	require.NoError(t, err)
	return svc
}

func TestApprovedNotificationCapturesAndIngests(t *testing.T) {
	api := &stubPayPal{orders: map[string]*paypal.Order{"ORD-1": approvedOrder("ORD-1")}}
	ingest := &stubIngester{}
	svc := newService(t, api, ingest)

	outcome, err := svc.HandleWebhook(context.Background(), []byte(`{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ORD-1"}}`))
	require.NoError(t, err)
	assert.Equal(t, payments.OutcomeCreated, outcome)
	assert.Equal(t, []string{"ORD-1"}, api.captured)

	require.Len(t, ingest.calls, 1)
	payment := ingest.calls[0]
	assert.Equal(t, enums.PaymentProviderPayPal, payment.Provider)
	assert.Equal(t, "ORD-1", payment.EventID)
	assert.Equal(t, "ORD-1", payment.ProviderRef)
	assert.Equal(t, "glow-lamp", payment.StoreSlug)
	assert.Equal(t, int64(5000), payment.AmountPaidCents)
	assert.Equal(t, "Paris", payment.ShippingAddress.City)
}

func TestCaptureNotificationAndReturnPathDedupe(t *testing.T) {
	api := &stubPayPal{orders: map[string]*paypal.Order{"ORD-2": approvedOrder("ORD-2")}}
	ingest := &stubIngester{}
	svc := newService(t, api, ingest)

	outcome, err := svc.ConfirmOrder(context.Background(), "ORD-2")
	require.NoError(t, err)
	assert.Equal(t, payments.OutcomeCreated, outcome)

	body := `{"id":"WH-2","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-ORD-2","supplementary_data":{"related_ids":{"order_id":"ORD-2"}}}}`
	outcome, err = svc.HandleWebhook(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, payments.OutcomeDuplicate, outcome)
	assert.Len(t, api.captured, 1)
}

func TestUnknownOrderFailsClosed(t *testing.T) {
	ingest := &stubIngester{}
	svc := newService(t, &stubPayPal{orders: map[string]*paypal.Order{}}, ingest)

	_, err := svc.HandleWebhook(context.Background(), []byte(`{"id":"WH-3","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"FORGED"}}`))
	require.Error(t, err)
	var sigErr *payments.SignatureVerificationError
	require.ErrorAs(t, err, &sigErr)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSignatureInvalid))
	assert.Empty(t, ingest.calls)
}

func TestPayPalOutageIsRetryable(t *testing.T) {
	api := &stubPayPal{getErr: &paypal.TransientError{Op: "get order", Err: &paypal.APIError{StatusCode: http.StatusBadGateway}}}
	svc := newService(t, api, &stubIngester{})

	_, err := svc.ConfirmOrder(context.Background(), "ORD-4")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
}

func TestCaptureRaceRefetchesOrder(t *testing.T) {
	order := approvedOrder("ORD-5")
	api := &stubPayPal{
		orders:     map[string]*paypal.Order{"ORD-5": order},
		captureErr: &paypal.APIError{Op: "capture order", StatusCode: http.StatusUnprocessableEntity},
	}
	svc := newService(t, api, &stubIngester{})

	// the other path completed the capture in between
	order.Status = paypal.OrderStatusApproved
	outcome, err := svc.ConfirmOrder(context.Background(), "ORD-5")
	require.NoError(t, err)
	assert.Equal(t, payments.OutcomeIgnored, outcome)

	order.Status = paypal.OrderStatusCompleted
	order.CaptureStatus = "COMPLETED"
	outcome, err = svc.ConfirmOrder(context.Background(), "ORD-5")
	require.NoError(t, err)
	assert.Equal(t, payments.OutcomeCreated, outcome)
}

func TestIgnoredNotifications(t *testing.T) {
	svc := newService(t, &stubPayPal{}, &stubIngester{})

	outcome, err := svc.HandleWebhook(context.Background(), []byte(`{"id":"WH-6","event_type":"BILLING.PLAN.CREATED","resource":{"id":"P-1"}}`))
	require.NoError(t, err)
	assert.Equal(t, payments.OutcomeIgnored, outcome)

	_, err = svc.HandleWebhook(context.Background(), []byte(`not json`))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestNormalizeRequiresSlug(t *testing.T) {
	order := approvedOrder("ORD-7")
	order.Status = paypal.OrderStatusCompleted
	order.CaptureStatus = "COMPLETED"
	order.CustomID = ""

	_, err := Normalize(order)
	require.Error(t, err)
}
