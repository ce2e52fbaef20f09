package paypal

import (
	"context"
	"net/http"
	"strings"

	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/money"
)

// PayoutRequest sends money to a single PayPal email.
type PayoutRequest struct {
	// SenderBatchID is unique per payout; PayPal rejects a reused id, which
	// keeps retries from paying twice.
	SenderBatchID string
	ReceiverEmail string
	AmountCents   int64
	Note          string
	EmailSubject  string
}

// PayoutBatch is the batch header returned by the Payouts API.
type PayoutBatch struct {
	BatchID string
	Status  string
}

// CreatePayout submits a one-item payout batch.
func (c *Client) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutBatch, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paypal client not configured")
	}
	if strings.TrimSpace(req.SenderBatchID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sender batch id is required")
	}
	if strings.TrimSpace(req.ReceiverEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receiver email is required")
	}
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	payload := map[string]any{
		"sender_batch_header": map[string]any{
			"sender_batch_id": req.SenderBatchID,
			"email_subject":   req.EmailSubject,
		},
		"items": []map[string]any{{
			"recipient_type": "EMAIL",
			"amount": map[string]string{
				"value":    money.FormatCents(req.AmountCents),
				"currency": c.currency,
			},
			"receiver":       req.ReceiverEmail,
			"note":           req.Note,
			"sender_item_id": req.SenderBatchID,
		}},
	}

	var resp struct {
		BatchHeader struct {
			PayoutBatchID string `json:"payout_batch_id"`
			BatchStatus   string `json:"batch_status"`
		} `json:"batch_header"`
	}
	if err := c.do(ctx, "create payout", http.MethodPost, "v1/payments/payouts", payload, &resp, nil); err != nil {
		return nil, err
	}
	if resp.BatchHeader.PayoutBatchID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paypal payout response missing batch id")
	}
	return &PayoutBatch{BatchID: resp.BatchHeader.PayoutBatchID, Status: resp.BatchHeader.BatchStatus}, nil
}
