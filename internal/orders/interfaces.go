package orders

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/pagination"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByRef(ctx context.Context, orderRef string) (*models.Order, error)
	FindBySupplierOrderID(ctx context.Context, supplierOrderID string) (*models.Order, error)
	// Transition moves the order to `to` only when its status is one of
	// `from`. It reports whether a row changed.
	Transition(ctx context.Context, orderRef string, from []enums.OrderStatus, to enums.OrderStatus, updates map[string]any) (bool, error)
	UpdateTracking(ctx context.Context, orderRef string, status enums.OrderStatus, updates map[string]any) (bool, error)
	ListForTracking(ctx context.Context, limit int) ([]models.Order, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ListBySeller(ctx context.Context, sellerEmail string, query ListQuery) ([]models.Order, error)
}

// ListQuery drives the seller order listing.
type ListQuery struct {
	Limit  int
	Cursor *pagination.Cursor
	Status *enums.OrderStatus
}
