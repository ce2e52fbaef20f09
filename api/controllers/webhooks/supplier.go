package webhooks

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dropone-app/dropone-backend/api/responses"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
)

// SupplierTokenHeader carries the shared secret configured in the supplier
// dashboard.
const SupplierTokenHeader = "X-Supplier-Token"

type SupplierEventHandler interface {
	HandleSupplierEvent(ctx context.Context, raw []byte) (bool, error)
}

type supplierResponse struct {
	Applied bool `json:"applied"`
}

// SupplierWebhook applies tracking and delivery notifications. An empty
// configured token rejects every request.
func SupplierWebhook(handler SupplierEventHandler, token string, logg *logger.Logger) http.HandlerFunc {
	expected := []byte(strings.TrimSpace(token))
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if handler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "supplier webhook unavailable"))
			return
		}

		provided := []byte(strings.TrimSpace(r.Header.Get(SupplierTokenHeader)))
		if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid supplier token"))
			return
		}

		payload, err := readBody(w, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		applied, err := handler.HandleSupplierEvent(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, supplierResponse{Applied: applied})
	}
}
