package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/dropone-app/dropone-backend/internal/payments"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/metrics"
	"github.com/dropone-app/dropone-backend/pkg/types"
)

const (
	paymentStatusPaid = "paid"
	metadataStoreSlug = "store_slug"
)

type eventVerifier interface {
	VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

type ingester interface {
	Ingest(ctx context.Context, payment payments.PaymentCompleted) (*payments.IngestResult, error)
}

type ServiceParams struct {
	Verifier eventVerifier
	Payments ingester
	Logger   *logger.Logger
	Metrics  *metrics.DomainMetrics
}

// Service verifies Stripe deliveries and forwards paid checkouts to ingestion.
type Service struct {
	verifier eventVerifier
	payments ingester
	logg     *logger.Logger
	metrics  *metrics.DomainMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe verifier required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		verifier: params.Verifier,
		payments: params.Payments,
		logg:     logg,
		metrics:  params.Metrics,
	}, nil
}

// HandleWebhook verifies the signature before anything else. Duplicates are
// reported as an outcome, not an error.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (payments.Outcome, error) {
	event, err := s.verifier.VerifyEvent(payload, signature)
	if err != nil {
		s.metrics.WebhookEvent(string(enums.PaymentProviderStripe), metrics.OutcomeRejected)
		return "", &payments.SignatureVerificationError{Provider: enums.PaymentProviderStripe, Err: err}
	}
	ctx = s.logg.WithEvent(ctx, string(enums.PaymentProviderStripe), event.ID)

	payment, ok, err := Normalize(event)
	if err != nil {
		return "", err
	}
	if !ok {
		s.metrics.WebhookEvent(string(enums.PaymentProviderStripe), metrics.OutcomeIgnored)
		s.logg.Debug(s.logg.WithField(ctx, "event_type", string(event.Type)), "stripe event ignored")
		return payments.OutcomeIgnored, nil
	}

	if _, err := s.payments.Ingest(ctx, *payment); err != nil {
		if payments.IsDuplicateEvent(err) {
			return payments.OutcomeDuplicate, nil
		}
		return "", err
	}
	return payments.OutcomeCreated, nil
}

// checkoutSession holds the session fields ingestion needs. Decoding the raw
// object keeps shipping details readable across API versions.
type checkoutSession struct {
	ID              string            `json:"id"`
	PaymentStatus   string            `json:"payment_status"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	CustomerEmail   string            `json:"customer_email"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails *struct {
		Email   string         `json:"email"`
		Name    string         `json:"name"`
		Phone   string         `json:"phone"`
		Address *stripeAddress `json:"address"`
	} `json:"customer_details"`
	CollectedInformation *struct {
		ShippingDetails *shippingDetails `json:"shipping_details"`
	} `json:"collected_information"`
	ShippingDetails *shippingDetails `json:"shipping_details"`
}

type shippingDetails struct {
	Name    string         `json:"name"`
	Address *stripeAddress `json:"address"`
}

type stripeAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Normalize maps a paid checkout session onto PaymentCompleted. Any other
// event, or a session that is not paid yet, reports ok=false.
func Normalize(event stripe.Event) (*payments.PaymentCompleted, bool, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		return nil, false, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var session checkoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	if session.PaymentStatus != paymentStatusPaid {
		return nil, false, nil
	}
	slug := strings.TrimSpace(session.Metadata[metadataStoreSlug])
	if slug == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "checkout session has no store slug")
	}

	payment := &payments.PaymentCompleted{
		Provider:        enums.PaymentProviderStripe,
		EventID:         event.ID,
		ProviderRef:     session.ID,
		StoreSlug:       slug,
		AmountPaidCents: session.AmountTotal,
		Currency:        strings.ToUpper(session.Currency),
		Customer:        payments.Customer{Email: session.CustomerEmail},
	}

	var phone string
	var billing *stripeAddress
	if details := session.CustomerDetails; details != nil {
		if details.Email != "" {
			payment.Customer.Email = details.Email
		}
		payment.Customer.Name = details.Name
		phone = details.Phone
		billing = details.Address
	}

	shipping := session.ShippingDetails
	if session.CollectedInformation != nil && session.CollectedInformation.ShippingDetails != nil {
		shipping = session.CollectedInformation.ShippingDetails
	}
	switch {
	case shipping != nil && shipping.Address != nil:
		payment.ShippingAddress = toAddress(shipping.Name, phone, shipping.Address)
		if payment.Customer.Name == "" {
			payment.Customer.Name = shipping.Name
		}
	case billing != nil:
		payment.ShippingAddress = toAddress(payment.Customer.Name, phone, billing)
	}
	return payment, true, nil
}

func toAddress(name, phone string, addr *stripeAddress) types.ShippingAddress {
	return types.ShippingAddress{
		Name:        name,
		Line1:       addr.Line1,
		Line2:       addr.Line2,
		City:        addr.City,
		State:       addr.State,
		PostalCode:  addr.PostalCode,
		CountryCode: strings.ToUpper(addr.Country),
		Phone:       phone,
	}
}
