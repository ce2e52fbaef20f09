package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropone-app/dropone-backend/internal/orders"
	"github.com/dropone-app/dropone-backend/pkg/backoff"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/metrics"
	"github.com/dropone-app/dropone-backend/pkg/supplier"
)

// DefaultPolicy bounds supplier order placement.
var DefaultPolicy = backoff.Policy{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaximumBackoff: 5 * time.Second,
	Jitter:         100 * time.Millisecond,
	CallTimeout:    30 * time.Second,
}

type orderService interface {
	Get(ctx context.Context, orderRef string) (*models.Order, error)
	GetBySupplierOrderID(ctx context.Context, supplierOrderID string) (*models.Order, error)
	MarkSubmitted(ctx context.Context, orderRef, supplierOrderID string, attempts int) (*models.Order, error)
	MarkSubmitFailed(ctx context.Context, orderRef, reason string, attempts int) (*models.Order, error)
	MarkShipped(ctx context.Context, orderRef string, tracking orders.Tracking) (*models.Order, error)
	UpdateTracking(ctx context.Context, orderRef string, tracking orders.Tracking) (*models.Order, error)
	MarkDelivered(ctx context.Context, orderRef string) (*models.Order, error)
	ListForTracking(ctx context.Context, limit int) ([]models.Order, error)
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.Order, error)
}

type supplierAPI interface {
	CreateOrder(ctx context.Context, req supplier.OrderRequest) (*supplier.OrderResult, error)
	GetOrderDetail(ctx context.Context, supplierOrderID string) (*supplier.OrderDetail, error)
	ProductDetail(ctx context.Context, productID string) (*supplier.Product, error)
}

type BridgeParams struct {
	Orders   orderService
	Supplier supplierAPI
	Retry    backoff.Policy
	Logger   *logger.Logger
	Metrics  *metrics.DomainMetrics
}

// Bridge places paid orders with the supplier and follows them until delivery.
type Bridge struct {
	orders   orderService
	supplier supplierAPI
	retry    backoff.Policy
	logg     *logger.Logger
	metrics  *metrics.DomainMetrics
}

func NewBridge(params BridgeParams) (*Bridge, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Supplier == nil {
		return nil, fmt.Errorf("supplier client required")
	}
	retry := params.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultPolicy
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Bridge{
		orders:   params.Orders,
		supplier: params.Supplier,
		retry:    retry,
		logg:     logg,
		metrics:  params.Metrics,
	}, nil
}

// Submit places the order with the supplier. Only pending orders, or error
// orders on an operator retry, are accepted. Transient supplier failures are
// retried under the bridge policy; when they run out, or on a permanent
// failure, the order moves to error and a SupplierOrderError is returned.
func (b *Bridge) Submit(ctx context.Context, orderRef string) (*models.Order, error) {
	order, err := b.orders.Get(ctx, orderRef)
	if err != nil {
		return nil, err
	}
	ctx = b.logg.WithOrderID(ctx, order.OrderRef)
	if !orders.Submittable(order.Status) {
		return nil, &orders.InvalidTransitionError{OrderRef: order.OrderRef, From: order.Status, To: enums.OrderStatusProcessing}
	}

	variantID := strings.TrimSpace(order.ProductVariantID)
	var result *supplier.OrderResult
	attempts, err := backoff.Do(ctx, b.retry, supplier.IsTransient, func(callCtx context.Context) error {
		if variantID == "" {
			product, err := b.supplier.ProductDetail(callCtx, order.ProductID)
			if err != nil {
				return err
			}
			variantID = product.DefaultVariantID()
			if variantID == "" {
				return &supplier.APIError{Op: "product detail", Message: "product " + order.ProductID + " has no variants"}
			}
		}
		res, err := b.supplier.CreateOrder(callCtx, supplier.OrderRequest{
			OrderNumber:   order.OrderRef,
			VariantID:     variantID,
			Quantity:      order.Quantity,
			CustomerEmail: derefString(order.CustomerEmail),
			Address:       order.ShippingAddress,
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	ctx = b.logg.WithField(ctx, "attempts", attempts)

	if err != nil {
		b.metrics.SupplierAttempt(metrics.OutcomeFailed)
		b.logg.Error(ctx, "supplier order failed", err)
		failure := &SupplierOrderError{OrderRef: order.OrderRef, Attempts: attempts, Err: err}
		if _, markErr := b.orders.MarkSubmitFailed(ctx, order.OrderRef, failure.Error(), attempts); markErr != nil {
			if orders.IsInvalidTransition(markErr) {
				// a concurrent submission already settled the order
				b.logg.Info(ctx, "order moved on during supplier call, failure not recorded")
				return nil, markErr
			}
			b.logg.Error(ctx, "failed to record supplier failure", markErr)
			return nil, markErr
		}
		return nil, failure
	}

	b.metrics.SupplierAttempt(metrics.OutcomeCreated)
	updated, err := b.orders.MarkSubmitted(ctx, order.OrderRef, result.SupplierOrderID, attempts)
	if err != nil {
		logCtx := b.logg.WithField(ctx, "supplier_order_id", result.SupplierOrderID)
		if orders.IsInvalidTransition(err) {
			b.logg.Warn(logCtx, "order moved on during supplier call, supplier order not recorded")
			return nil, err
		}
		b.logg.Error(logCtx, "supplier order placed but not recorded", err)
		return nil, err
	}
	b.logg.Info(b.logg.WithField(ctx, "supplier_order_id", result.SupplierOrderID), "supplier order placed")
	return updated, nil
}

// SweepPending submits pending orders older than olderThan so an order whose
// paid event was lost still reaches the supplier. It returns how many were
// placed.
func (b *Bridge) SweepPending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := b.orders.ListStalePending(ctx, olderThan, limit)
	if err != nil {
		return 0, err
	}
	placed := 0
	for _, order := range stale {
		if ctx.Err() != nil {
			return placed, ctx.Err()
		}
		if _, err := b.Submit(ctx, order.OrderRef); err != nil {
			// the failure is already recorded on the order
			if IsSupplierOrderError(err) || orders.IsInvalidTransition(err) {
				continue
			}
			return placed, err
		}
		placed++
	}
	return placed, nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
