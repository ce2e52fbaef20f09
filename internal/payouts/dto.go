package payouts

import (
	"time"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
)

// WithdrawRequest asks for part of the seller balance to be paid out. An
// empty Method uses the seller's preferred method.
type WithdrawRequest struct {
	SellerEmail string
	AmountCents int64
	Method      enums.PayoutMethod
}

// PayoutView is the seller-facing payout record.
type PayoutView struct {
	PayoutID      string             `json:"payout_id"`
	AmountCents   int64              `json:"amount_cents"`
	Currency      string             `json:"currency"`
	Method        enums.PayoutMethod `json:"method"`
	Status        enums.PayoutStatus `json:"status"`
	Error         *string            `json:"error,omitempty"`
	RailReference *string            `json:"rail_reference,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	FailedAt      *time.Time         `json:"failed_at,omitempty"`
}

// PayoutList is one page of payout history.
type PayoutList struct {
	Items  []PayoutView `json:"items"`
	Cursor string       `json:"cursor"`
}

// ToView converts a payout row for API responses.
func ToView(p models.Payout) PayoutView {
	return PayoutView{
		PayoutID:      p.PayoutRef,
		AmountCents:   p.AmountCents,
		Currency:      p.Currency,
		Method:        p.Method,
		Status:        p.Status,
		Error:         p.Error,
		RailReference: p.RailReference,
		CreatedAt:     p.CreatedAt,
		CompletedAt:   p.CompletedAt,
		FailedAt:      p.FailedAt,
	}
}
