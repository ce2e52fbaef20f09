package sellers

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
)

// Repository exposes seller persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a sellers repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByEmail returns nil when the seller has no row yet.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Seller, error) {
	var seller models.Seller
	err := r.db.WithContext(ctx).Where("email = ?", email).Take(&seller).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &seller, nil
}

// UpdatePayoutFields creates the seller row when missing and applies the
// payout identity columns.
func (r *Repository) UpdatePayoutFields(ctx context.Context, email string, updates map[string]any) (*models.Seller, error) {
	var seller models.Seller
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(models.Seller{Email: email}).FirstOrCreate(&seller).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Seller{}).Where("email = ?", email).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("email = ?", email).Take(&seller).Error
	})
	if err != nil {
		return nil, err
	}
	return &seller, nil
}
