package sellers

import (
	"context"
	"net/http"
	"strings"

	"github.com/dropone-app/dropone-backend/api/middleware"
	"github.com/dropone-app/dropone-backend/api/responses"
	"github.com/dropone-app/dropone-backend/api/validators"
	internalorders "github.com/dropone-app/dropone-backend/internal/orders"
	"github.com/dropone-app/dropone-backend/internal/payouts"
	internalsellers "github.com/dropone-app/dropone-backend/internal/sellers"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/pagination"
)

type payoutProcessor interface {
	Withdraw(ctx context.Context, req payouts.WithdrawRequest) (*models.Payout, error)
	ListSellerPayouts(ctx context.Context, sellerEmail string, params pagination.Params) (*payouts.PayoutList, error)
}

type orderLister interface {
	ListSellerOrders(ctx context.Context, sellerEmail string, params pagination.Params, status *enums.OrderStatus) (*internalorders.OrderList, error)
}

type withdrawRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Method      string `json:"method" validate:"omitempty,oneof=stripe paypal"`
}

type paypalMethodRequest struct {
	PayPalEmail string `json:"paypal_email" validate:"required,email,max=254"`
}

// Balance returns the seller's balance, totals and payout setup.
func Balance(svc internalsellers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sellers service unavailable"))
			return
		}
		email, err := sellerEmail(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Balance(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Payouts pages through the seller's payout history, newest first.
func Payouts(processor payoutProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if processor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts unavailable"))
			return
		}
		email, err := sellerEmail(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := processor.ListSellerPayouts(r.Context(), email, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Withdraw pays part of the balance out. A rail failure answers 502 with the
// balance already restored.
func Withdraw(processor payoutProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if processor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts unavailable"))
			return
		}
		email, err := sellerEmail(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body withdrawRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := processor.Withdraw(r.Context(), payouts.WithdrawRequest{
			SellerEmail: email,
			AmountCents: body.AmountCents,
			Method:      enums.PayoutMethod(body.Method),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payouts.ToView(*payout))
	}
}

// SetPayPalMethod stores the seller's PayPal receiver and makes PayPal the
// preferred method.
func SetPayPalMethod(svc internalsellers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sellers service unavailable"))
			return
		}
		email, err := sellerEmail(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body paypalMethodRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.SetPayPalEmail(r.Context(), email, body.PayPalEmail)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// StartStripeOnboarding returns a Stripe Connect onboarding link, creating
// the connected account on first use.
func StartStripeOnboarding(svc internalsellers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sellers service unavailable"))
			return
		}
		email, err := sellerEmail(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		link, err := svc.StartStripeOnboarding(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, link)
	}
}

// Orders lists the seller's orders, optionally filtered by status.
func Orders(svc orderLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		email, err := sellerEmail(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.OrderStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
					WithDetails(map[string]any{"field": "status"}))
				return
			}
			status = &parsed
		}

		list, err := svc.ListSellerOrders(r.Context(), email, params, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func sellerEmail(r *http.Request) (string, error) {
	email := middleware.SellerEmailFromContext(r.Context())
	if email == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing")
	}
	return email, nil
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
