package controllers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropone-app/dropone-backend/api/middleware"
	"github.com/dropone-app/dropone-backend/api/responses"
	"github.com/dropone-app/dropone-backend/internal/ledger"
	internalorders "github.com/dropone-app/dropone-backend/internal/orders"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/outbox"
)

type orderRefunder interface {
	Refund(ctx context.Context, orderRef string, actor *outbox.ActorRef) (*internalorders.RefundResult, error)
}

type fulfillmentRetrier interface {
	Submit(ctx context.Context, orderRef string) (*models.Order, error)
}

type sellerReconciler interface {
	Reconcile(ctx context.Context, email string) (*ledger.Reconciliation, error)
}

type refundResponse struct {
	Order            internalorders.OrderSummary `json:"order"`
	DebitedCents     int64                       `json:"debited_cents"`
	UnrecoveredCents int64                       `json:"unrecovered_cents"`
}

// AdminRefundOrder marks the order refunded and recovers the seller margin.
func AdminRefundOrder(svc orderRefunder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderRef, err := orderRefParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := &outbox.ActorRef{Kind: outbox.ActorAdmin, ID: middleware.SellerEmailFromContext(r.Context())}
		result, err := svc.Refund(r.Context(), orderRef, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := refundResponse{
			DebitedCents:     result.DebitedCents,
			UnrecoveredCents: result.UnrecoveredCents,
		}
		if result.Order != nil {
			resp.Order = internalorders.ToSummary(*result.Order)
		}
		responses.WriteSuccess(w, resp)
	}
}

// AdminRetryFulfillment resubmits an order in error to the supplier. A
// supplier failure is recorded on the order again and answered with 502.
func AdminRetryFulfillment(bridge fulfillmentRetrier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bridge == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment unavailable"))
			return
		}

		orderRef, err := orderRefParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := bridge.Submit(r.Context(), orderRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.ToSummary(*order))
	}
}

// AdminReconcileSeller compares the stored seller totals with the ledger.
func AdminReconcileSeller(svc sellerReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		raw := chi.URLParam(r, "email")
		email, err := url.PathUnescape(raw)
		if err != nil || strings.TrimSpace(email) == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "seller email is required"))
			return
		}

		report, err := svc.Reconcile(r.Context(), email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !report.Balanced && logg != nil {
			logg.Warn(logg.WithSellerEmail(r.Context(), report.SellerEmail), "seller ledger out of balance")
		}
		responses.WriteSuccess(w, report)
	}
}

func orderRefParam(r *http.Request) (string, error) {
	ref := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if ref == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return ref, nil
}
