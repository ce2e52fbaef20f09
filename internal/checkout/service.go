package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/dropone-app/dropone-backend/internal/payments"
	"github.com/dropone-app/dropone-backend/pkg/config"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/paypal"
	pkgstripe "github.com/dropone-app/dropone-backend/pkg/stripe"
)

// DefaultShippingCountries are the destinations the supplier ships to from
// the EU warehouse.
var DefaultShippingCountries = []string{"FR", "BE", "LU", "DE", "AT", "NL", "ES", "PT", "IT", "IE"}

var errStoreUnavailable = pkgerrors.New(pkgerrors.CodeNotFound, "store not found")

type stripeCheckout interface {
	CreateCheckoutSession(ctx context.Context, params pkgstripe.CheckoutParams) (*stripe.CheckoutSession, error)
}

type paypalCheckout interface {
	CreateOrder(ctx context.Context, req paypal.CreateOrderRequest) (*paypal.CreatedOrder, error)
}

// Request asks for a hosted payment page for one store.
type Request struct {
	StoreSlug string                `json:"store_slug" validate:"required,store_slug"`
	Provider  enums.PaymentProvider `json:"provider" validate:"required,oneof=stripe paypal"`
}

func (r *Request) Normalize() {
	r.StoreSlug = strings.ToLower(strings.TrimSpace(r.StoreSlug))
	r.Provider = enums.PaymentProvider(strings.ToLower(strings.TrimSpace(string(r.Provider))))
}

// Session is where the buyer is sent to pay.
type Session struct {
	Provider  enums.PaymentProvider `json:"provider"`
	SessionID string                `json:"session_id"`
	URL       string                `json:"url"`
}

// Service creates checkout sessions.
type Service interface {
	Create(ctx context.Context, req Request) (*Session, error)
}

type ServiceParams struct {
	Repo              Repository
	Stripe            stripeCheckout
	PayPal            paypalCheckout
	Splitter          *payments.Splitter
	App               config.AppConfig
	Currency          string
	ShippingCountries []string
	Logger            *logger.Logger
}

type service struct {
	repo      Repository
	stripe    stripeCheckout
	paypal    paypalCheckout
	splitter  *payments.Splitter
	app       config.AppConfig
	currency  string
	countries []string
	logg      *logger.Logger
}

// NewService builds the checkout service. Either provider may be nil when it
// is not configured.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Splitter == nil {
		return nil, fmt.Errorf("commission splitter required")
	}
	countries := params.ShippingCountries
	if len(countries) == 0 {
		countries = DefaultShippingCountries
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "eur"
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      params.Repo,
		stripe:    params.Stripe,
		paypal:    params.PayPal,
		splitter:  params.Splitter,
		app:       params.App,
		currency:  currency,
		countries: countries,
		logg:      logg,
	}, nil
}

func (s *service) Create(ctx context.Context, req Request) (*Session, error) {
	slug := strings.ToLower(strings.TrimSpace(req.StoreSlug))
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store slug is required")
	}
	store, err := s.repo.FindStore(ctx, slug)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	if store == nil || !store.IsActive {
		return nil, errStoreUnavailable
	}
	if store.SellerPriceCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store has no price")
	}
	ctx = s.logg.WithField(ctx, "store_slug", slug)

	switch req.Provider {
	case enums.PaymentProviderStripe:
		return s.createStripe(ctx, slug, store.OwnerEmail, store.ProductName, store.SellerPriceCents, store.SupplierCostCents)
	case enums.PaymentProviderPayPal:
		return s.createPayPal(ctx, slug, store.StoreName, store.ProductName, store.SellerPriceCents)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment provider")
	}
}

// createStripe opens a hosted session. When the seller has a connected
// account the charge is a destination charge and the platform keeps the
// commission plus the supplier cost as its application fee.
func (s *service) createStripe(ctx context.Context, slug, owner, productName string, price, cost int64) (*Session, error) {
	if s.stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe not configured")
	}
	params := pkgstripe.CheckoutParams{
		StoreSlug:         slug,
		ProductName:       productName,
		UnitAmountCents:   price,
		Quantity:          1,
		Currency:          s.currency,
		SuccessURL:        s.app.URL("/s/" + url.PathEscape(slug) + "/thanks?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         s.app.URL("/s/" + url.PathEscape(slug)),
		ShippingCountries: s.countries,
		Metadata:          map[string]string{"store_slug": slug},
	}

	seller, err := s.repo.FindSeller(ctx, strings.ToLower(owner))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	if seller != nil && seller.StripeAccountID != nil && *seller.StripeAccountID != "" {
		split := s.splitter.Compute(price, cost)
		params.ConnectedAccount = *seller.StripeAccountID
		params.ApplicationFeeCents = split.CommissionCents + split.SupplierCostCents
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.logg.Error(ctx, "stripe checkout session failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return &Session{Provider: enums.PaymentProviderStripe, SessionID: session.ID, URL: session.URL}, nil
}

func (s *service) createPayPal(ctx context.Context, slug, storeName, productName string, price int64) (*Session, error) {
	if s.paypal == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paypal not configured")
	}
	order, err := s.paypal.CreateOrder(ctx, paypal.CreateOrderRequest{
		StoreSlug:   slug,
		Description: productName,
		AmountCents: price,
		ReturnURL:   s.app.URL("/s/" + url.PathEscape(slug) + "/paypal/return"),
		CancelURL:   s.app.URL("/s/" + url.PathEscape(slug)),
		BrandName:   storeName,
	})
	if err != nil {
		s.logg.Error(ctx, "paypal order creation failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create paypal order")
	}
	return &Session{Provider: enums.PaymentProviderPayPal, SessionID: order.ID, URL: order.ApproveURL}, nil
}
