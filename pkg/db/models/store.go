package models

import "time"

// Store is the storefront record owned by the store generator. Read only here.
type Store struct {
	Slug              string    `gorm:"column:slug;type:text;primaryKey"`
	OwnerEmail        string    `gorm:"column:owner_email;type:text;not null;index"`
	StoreName         string    `gorm:"column:store_name;type:text;not null"`
	ProductID         string    `gorm:"column:product_id;type:text;not null"`
	ProductVariantID  string    `gorm:"column:product_variant_id;type:text"`
	ProductName       string    `gorm:"column:product_name;type:text;not null"`
	SellerPriceCents  int64     `gorm:"column:seller_price_cents;not null"`
	SupplierCostCents int64     `gorm:"column:supplier_cost_cents;not null"`
	IsActive          bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name.
func (Store) TableName() string { return "stores" }
