package orders

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByRef(ctx context.Context, orderRef string) (*models.Order, error) {
	return r.findOne(ctx, "order_id = ?", orderRef)
}

func (r *repository) FindBySupplierOrderID(ctx context.Context, supplierOrderID string) (*models.Order, error) {
	return r.findOne(ctx, "supplier_order_id = ?", supplierOrderID)
}

func (r *repository) findOne(ctx context.Context, where string, arg any) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where(where, arg).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Transition(ctx context.Context, orderRef string, from []enums.OrderStatus, to enums.OrderStatus, updates map[string]any) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = to

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND status IN ?", orderRef, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateTracking(ctx context.Context, orderRef string, status enums.OrderStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND status = ?", orderRef, status).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListForTracking returns orders awaiting shipment or delivery, least recently
// touched first.
func (r *repository) ListForTracking(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusProcessing, enums.OrderStatusShipped}).
		Where("supplier_order_id IS NOT NULL AND supplier_order_id <> ''").
		Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListBySeller(ctx context.Context, sellerEmail string, query ListQuery) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Where("seller_email = ?", sellerEmail)
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}

	var orders []models.Order
	err := q.Scopes(pagination.Newest(query.Cursor, query.Limit)).Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
