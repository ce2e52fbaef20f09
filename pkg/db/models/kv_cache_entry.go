package models

import (
	"encoding/json"
	"time"
)

// KVCacheEntry is a durable key/value row shared by stateless invocations.
type KVCacheEntry struct {
	ID        string          `gorm:"column:id;type:text;primaryKey"`
	Value     json.RawMessage `gorm:"column:value;type:jsonb;not null"`
	UpdatedAt time.Time       `gorm:"column:updated_at;not null"`
}

// TableName pins the table name.
func (KVCacheEntry) TableName() string { return "kv_cache" }
