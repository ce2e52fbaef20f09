package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/pkg/enums"
)

// Payout is a seller withdrawal. Only one pending payout may exist per seller.
type Payout struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	PayoutRef     string             `gorm:"column:payout_id;type:text;not null;uniqueIndex"`
	Email         string             `gorm:"column:email;type:text;not null;index;uniqueIndex:idx_payouts_one_pending,where:status = 'pending'"`
	AmountCents   int64              `gorm:"column:amount_cents;not null;check:chk_payouts_amount_positive,amount_cents > 0"`
	Currency      string             `gorm:"column:currency;type:text;not null;default:'EUR'"`
	Method        enums.PayoutMethod `gorm:"column:method;type:text;not null"`
	Destination   string             `gorm:"column:destination;type:text;not null"`
	Status        enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Error         *string            `gorm:"column:error"`
	RailReference *string            `gorm:"column:rail_reference"`
	CompletedAt   *time.Time         `gorm:"column:completed_at"`
	FailedAt      *time.Time         `gorm:"column:failed_at"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name.
func (Payout) TableName() string { return "payouts" }

// BeforeCreate assigns a primary key when the caller did not.
func (p *Payout) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
