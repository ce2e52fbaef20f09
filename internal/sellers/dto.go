package sellers

import (
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
)

// BalanceView is what the seller dashboard shows next to the withdraw button.
type BalanceView struct {
	Email               string              `json:"email"`
	BalanceCents        int64               `json:"balance_cents"`
	TotalEarningsCents  int64               `json:"total_earnings_cents"`
	TotalWithdrawnCents int64               `json:"total_withdrawn_cents"`
	Currency            string              `json:"currency"`
	PayoutMethod        *enums.PayoutMethod `json:"payout_method,omitempty"`
	PayPalEmail         *string             `json:"paypal_email,omitempty"`
	StripeConnected     bool                `json:"stripe_connected"`
	MinWithdrawalCents  int64               `json:"min_withdrawal_cents"`
	CanWithdraw         bool                `json:"can_withdraw"`
}

// OnboardingLink sends the seller to Stripe to finish Connect onboarding.
type OnboardingLink struct {
	AccountID string `json:"account_id"`
	URL       string `json:"url"`
}

func toBalanceView(email string, seller *models.Seller, currency string, minimum int64) *BalanceView {
	view := &BalanceView{Email: email, Currency: currency, MinWithdrawalCents: minimum}
	if seller == nil {
		return view
	}
	view.BalanceCents = seller.BalanceCents
	view.TotalEarningsCents = seller.TotalEarningsCents
	view.TotalWithdrawnCents = seller.TotalWithdrawnCents
	view.PayoutMethod = seller.PayoutMethod
	view.PayPalEmail = seller.PayPalEmail
	view.StripeConnected = seller.StripeAccountID != nil && *seller.StripeAccountID != ""

	if seller.PayoutMethod != nil {
		_, configured := seller.PayoutIdentity(*seller.PayoutMethod)
		view.CanWithdraw = configured && seller.BalanceCents >= minimum
	}
	return view
}
