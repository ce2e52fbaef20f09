package payments

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
)

// Repository reads stores and records processed provider events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindStore(ctx context.Context, slug string) (*models.Store, error)
	MarkProcessed(ctx context.Context, event *models.ProcessedWebhookEvent) error
	FindProcessed(ctx context.Context, provider enums.PaymentProvider, eventID string) (*models.ProcessedWebhookEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the payments repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindStore(ctx context.Context, slug string) (*models.Store, error) {
	var store models.Store
	err := r.db.WithContext(ctx).Where("slug = ?", slug).Take(&store).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &store, nil
}

// MarkProcessed inserts the dedupe marker. A second insert for the same
// provider event fails with a primary key violation.
func (r *repository) MarkProcessed(ctx context.Context, event *models.ProcessedWebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) FindProcessed(ctx context.Context, provider enums.PaymentProvider, eventID string) (*models.ProcessedWebhookEvent, error) {
	var event models.ProcessedWebhookEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Take(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}
