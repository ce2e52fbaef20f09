package checkout

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
)

// Repository exposes the store and seller lookups checkout needs.
type Repository interface {
	FindStore(ctx context.Context, slug string) (*models.Store, error)
	FindSeller(ctx context.Context, email string) (*models.Seller, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout repository backed by the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindStore(ctx context.Context, slug string) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).Take(&store).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &store, nil
}

func (r *repository) FindSeller(ctx context.Context, email string) (*models.Seller, error) {
	var seller models.Seller
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&seller).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &seller, nil
}
