package payouts

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/pagination"
)

// Repository persists payouts and reads seller payout identities.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindSeller(ctx context.Context, email string) (*models.Seller, error)
	Create(ctx context.Context, payout *models.Payout) error
	FindByRef(ctx context.Context, payoutRef string) (*models.Payout, error)
	// Settle moves a pending payout to its final status. It reports false when
	// the payout was no longer pending.
	Settle(ctx context.Context, payoutRef string, status enums.PayoutStatus, updates map[string]any) (bool, error)
	ListBySeller(ctx context.Context, email string, limit int, cursor *pagination.Cursor) ([]models.Payout, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Payout, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the payouts repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindSeller(ctx context.Context, email string) (*models.Seller, error) {
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

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByRef(ctx context.Context, payoutRef string) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).Where("payout_id = ?", payoutRef).Take(&payout).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) Settle(ctx context.Context, payoutRef string, status enums.PayoutStatus, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = status

	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("payout_id = ? AND status = ?", payoutRef, enums.PayoutStatusPending).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListBySeller(ctx context.Context, email string, limit int, cursor *pagination.Cursor) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.WithContext(ctx).
		Where("email = ?", email).
		Scopes(pagination.Newest(cursor, limit)).
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.PayoutStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}
