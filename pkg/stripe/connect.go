package stripe

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	checkoutsession "github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/transfer"
	"github.com/stripe/stripe-go/v84/webhook"
)

// TransferParams describes a platform-to-connected-account transfer.
type TransferParams struct {
	AmountCents    int64
	Currency       string
	Destination    string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// CheckoutParams describes a single-product hosted checkout.
type CheckoutParams struct {
	StoreSlug         string
	ProductName       string
	UnitAmountCents   int64
	Quantity          int64
	Currency          string
	SuccessURL        string
	CancelURL         string
	ShippingCountries []string
	Metadata          map[string]string

	// ConnectedAccount routes the charge to the seller with ApplicationFeeCents
	// retained by the platform. Empty keeps the full charge on the platform.
	ConnectedAccount    string
	ApplicationFeeCents int64
}

// VerifyEvent checks the Stripe-Signature header and decodes the event.
func (c *Client) VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	if c == nil || c.signingSecret == "" {
		return stripe.Event{}, errSecretRequired
	}
	return webhook.ConstructEventWithOptions(payload, signatureHeader, c.signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// Transfer moves funds from the platform balance to a connected account.
func (c *Client) Transfer(ctx context.Context, params TransferParams) (*stripe.Transfer, error) {
	if params.AmountCents <= 0 {
		return nil, errors.New("transfer amount must be positive")
	}
	if strings.TrimSpace(params.Destination) == "" {
		return nil, errors.New("transfer destination is required")
	}
	req := &stripe.TransferParams{
		Amount:      stripe.Int64(params.AmountCents),
		Currency:    stripe.String(c.currencyOr(params.Currency)),
		Destination: stripe.String(params.Destination),
	}
	if params.Description != "" {
		req.Description = stripe.String(params.Description)
	}
	for k, v := range params.Metadata {
		req.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		req.SetIdempotencyKey(params.IdempotencyKey)
	}
	req.Context = ctx
	return transfer.New(req)
}

// CreateCheckoutSession opens a hosted payment page for one product.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*stripe.CheckoutSession, error) {
	if params.UnitAmountCents <= 0 {
		return nil, errors.New("unit amount must be positive")
	}
	quantity := params.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	req := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(quantity),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(c.currencyOr(params.Currency)),
					UnitAmount: stripe.Int64(params.UnitAmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(params.ProductName),
					},
				},
			},
		},
	}
	if len(params.ShippingCountries) > 0 {
		req.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(params.ShippingCountries),
		}
	}
	if params.ConnectedAccount != "" {
		req.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(params.ApplicationFeeCents),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(params.ConnectedAccount),
			},
		}
	}
	req.AddMetadata("store_slug", params.StoreSlug)
	for k, v := range params.Metadata {
		req.AddMetadata(k, v)
	}
	req.Context = ctx
	return checkoutsession.New(req)
}

// CreateExpressAccount registers a Connect Express account for a seller.
func (c *Client) CreateExpressAccount(ctx context.Context, email string) (*stripe.Account, error) {
	req := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if c.connectCountry != "" {
		req.Country = stripe.String(c.connectCountry)
	}
	req.AddMetadata("seller_email", email)
	req.Context = ctx
	return account.New(req)
}

// CreateOnboardingLink returns a single-use Connect onboarding URL.
func (c *Client) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	req := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	req.Context = ctx
	link, err := accountlink.New(req)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

// Currency returns the lower-cased default currency.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

func (c *Client) currencyOr(currency string) string {
	if v := strings.ToLower(strings.TrimSpace(currency)); v != "" {
		return v
	}
	if c.currency != "" {
		return c.currency
	}
	return defaultCurrency
}
