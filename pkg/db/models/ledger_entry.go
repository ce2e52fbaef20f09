package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/pkg/enums"
)

// LedgerEntry is an append-only record of one seller balance movement.
// AmountCents is signed: credits positive, debits negative.
type LedgerEntry struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	SellerEmail string                `gorm:"column:seller_email;type:text;not null;index"`
	Type        enums.LedgerEntryType `gorm:"column:type;type:text;not null"`
	AmountCents int64                 `gorm:"column:amount_cents;not null"`
	OrderID     *string               `gorm:"column:order_id;index"`
	PayoutID    *string               `gorm:"column:payout_id;index"`
	Reason      string                `gorm:"column:reason;type:text;not null"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// BeforeCreate assigns a primary key when the caller did not.
func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
