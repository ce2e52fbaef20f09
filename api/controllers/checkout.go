package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropone-app/dropone-backend/api/responses"
	"github.com/dropone-app/dropone-backend/api/validators"
	checkoutsvc "github.com/dropone-app/dropone-backend/internal/checkout"
	"github.com/dropone-app/dropone-backend/internal/payments"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
)

type paypalConfirmer interface {
	ConfirmOrder(ctx context.Context, orderID string) (payments.Outcome, error)
}

// Checkout creates a hosted payment page for the store's product.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutsvc.Request
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Create(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

type captureResponse struct {
	PayPalOrderID string           `json:"paypal_order_id"`
	Outcome       payments.Outcome `json:"outcome"`
}

// PayPalCapture is the buyer-return fallback for PayPal. It shares the
// webhook ingestion path, so whichever arrives second is a duplicate.
func PayPalCapture(svc paypalConfirmer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "paypal unavailable"))
			return
		}

		orderID := strings.TrimSpace(chi.URLParam(r, "paypalOrderID"))
		if orderID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "paypal order id is required"))
			return
		}

		outcome, err := svc.ConfirmOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, captureResponse{PayPalOrderID: orderID, Outcome: outcome})
	}
}
