package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/pkg/enums"
)

// Seller is a storefront owner. The balance columns are the ledger's source of truth.
// gorm takes one check per field, so the model carries the balance identity
// instead of the earnings check the identity already implies.
type Seller struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Email               string              `gorm:"column:email;type:text;not null;uniqueIndex"`
	Name                *string             `gorm:"column:name"`
	BalanceCents        int64               `gorm:"column:balance_cents;not null;default:0;check:chk_users_balance_non_negative,balance_cents >= 0"`
	TotalEarningsCents  int64               `gorm:"column:total_earnings_cents;not null;default:0;check:chk_users_balance_identity,balance_cents = total_earnings_cents - total_withdrawn_cents"`
	TotalWithdrawnCents int64               `gorm:"column:total_withdrawn_cents;not null;default:0;check:chk_users_withdrawn_non_negative,total_withdrawn_cents >= 0"`
	PayoutMethod        *enums.PayoutMethod `gorm:"column:payout_method;type:text"`
	StripeAccountID     *string             `gorm:"column:stripe_account_id"`
	PayPalEmail         *string             `gorm:"column:paypal_email"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the storefront service's table name.
func (Seller) TableName() string { return "users" }

// BeforeCreate assigns a primary key when the caller did not.
func (s *Seller) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// PayoutIdentity returns the on-file destination for the given method.
func (s Seller) PayoutIdentity(method enums.PayoutMethod) (string, bool) {
	switch method {
	case enums.PayoutMethodStripe:
		if s.StripeAccountID != nil && *s.StripeAccountID != "" {
			return *s.StripeAccountID, true
		}
	case enums.PayoutMethodPayPal:
		if s.PayPalEmail != nil && *s.PayPalEmail != "" {
			return *s.PayPalEmail, true
		}
	}
	return "", false
}
