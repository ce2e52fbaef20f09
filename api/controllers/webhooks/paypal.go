package webhooks

import (
	"context"
	"net/http"

	"github.com/dropone-app/dropone-backend/api/responses"
	"github.com/dropone-app/dropone-backend/internal/payments"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
)

type PayPalWebhookService interface {
	HandleWebhook(ctx context.Context, payload []byte) (payments.Outcome, error)
}

// PayPalWebhook handles order approval and capture notifications. The body is
// only used to find the PayPal order, which is then read back from PayPal.
func PayPalWebhook(svc PayPalWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := readBody(w, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome, err := svc.HandleWebhook(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "outcome", string(outcome)), "paypal webhook handled")
		}
		responses.WriteSuccess(w, outcomeResponse{Outcome: outcome})
	}
}
