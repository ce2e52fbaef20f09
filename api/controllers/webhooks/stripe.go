package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/dropone-app/dropone-backend/api/responses"
	"github.com/dropone-app/dropone-backend/internal/payments"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

type StripeWebhookService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (payments.Outcome, error)
}

type outcomeResponse struct {
	Outcome payments.Outcome `json:"outcome"`
}

// StripeWebhook verifies and ingests Stripe deliveries. Redeliveries of an
// applied event answer 200 so Stripe stops retrying; internal failures answer
// 5xx so it does not.
func StripeWebhook(svc StripeWebhookService, logg *logger.Logger) http.HandlerFunc {
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

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "stripe signature missing"))
			return
		}

		outcome, err := svc.HandleWebhook(ctx, payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "outcome", string(outcome)), "stripe webhook handled")
		}
		responses.WriteSuccess(w, outcomeResponse{Outcome: outcome})
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	return payload, nil
}
