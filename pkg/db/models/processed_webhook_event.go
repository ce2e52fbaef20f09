package models

import (
	"time"

	"github.com/dropone-app/dropone-backend/pkg/enums"
)

// ProcessedWebhookEvent marks a provider event as applied. It is inserted in the
// same transaction as the order the event created.
type ProcessedWebhookEvent struct {
	Provider  enums.PaymentProvider `gorm:"column:provider;type:text;primaryKey"`
	EventID   string                `gorm:"column:event_id;type:text;primaryKey"`
	OrderRef  string                `gorm:"column:order_id;type:text;not null"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table name.
func (ProcessedWebhookEvent) TableName() string { return "processed_webhook_events" }
