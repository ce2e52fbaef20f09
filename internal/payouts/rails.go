package payouts

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/paypal"
	pkgstripe "github.com/dropone-app/dropone-backend/pkg/stripe"
)

// RailRequest is one transfer to a seller destination.
type RailRequest struct {
	PayoutRef   string
	Destination string
	AmountCents int64
	Currency    string
}

// Rail moves money to a seller. Send must be safe to repeat with the same
// PayoutRef.
type Rail interface {
	Method() enums.PayoutMethod
	Send(ctx context.Context, req RailRequest) (reference string, err error)
	// Transient reports whether a failed Send is worth retrying.
	Transient(err error) bool
}

type stripeTransferer interface {
	Transfer(ctx context.Context, params pkgstripe.TransferParams) (*stripe.Transfer, error)
}

// StripeRail pays a Stripe Connect account through a platform transfer.
type StripeRail struct {
	client stripeTransferer
}

func NewStripeRail(client stripeTransferer) *StripeRail {
	return &StripeRail{client: client}
}

func (r *StripeRail) Method() enums.PayoutMethod { return enums.PayoutMethodStripe }

func (r *StripeRail) Send(ctx context.Context, req RailRequest) (string, error) {
	transfer, err := r.client.Transfer(ctx, pkgstripe.TransferParams{
		AmountCents:    req.AmountCents,
		Currency:       strings.ToLower(req.Currency),
		Destination:    req.Destination,
		Description:    "DropOne payout " + req.PayoutRef,
		IdempotencyKey: "payout-" + req.PayoutRef,
		Metadata:       map[string]string{"payout_id": req.PayoutRef},
	})
	if err != nil {
		return "", err
	}
	return transfer.ID, nil
}

func (r *StripeRail) Transient(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return isNetworkError(err)
}

type paypalPayer interface {
	CreatePayout(ctx context.Context, req paypal.PayoutRequest) (*paypal.PayoutBatch, error)
}

// PayPalRail pays a PayPal email through the Payouts API.
type PayPalRail struct {
	client paypalPayer
}

func NewPayPalRail(client paypalPayer) *PayPalRail {
	return &PayPalRail{client: client}
}

func (r *PayPalRail) Method() enums.PayoutMethod { return enums.PayoutMethodPayPal }

func (r *PayPalRail) Send(ctx context.Context, req RailRequest) (string, error) {
	batch, err := r.client.CreatePayout(ctx, paypal.PayoutRequest{
		SenderBatchID: req.PayoutRef,
		ReceiverEmail: req.Destination,
		AmountCents:   req.AmountCents,
		Note:          "DropOne payout " + req.PayoutRef,
		EmailSubject:  "You have a payout from DropOne",
	})
	if err != nil {
		// a reused sender_batch_id means an earlier attempt already went through
		if isDuplicateBatch(err) {
			return req.PayoutRef, nil
		}
		return "", err
	}
	return batch.BatchID, nil
}

func (r *PayPalRail) Transient(err error) bool {
	return paypal.IsTransient(err) || isNetworkError(err)
}

func isDuplicateBatch(err error) bool {
	var apiErr *paypal.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusBadRequest && strings.Contains(apiErr.Body, "SENDER_BATCH_ID_ALREADY_USED")
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
