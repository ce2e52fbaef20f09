package fulfillment

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dropone-app/dropone-backend/internal/orders"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/supplier"
)

const defaultPollConcurrency = 4

// PollResult summarizes one tracking sweep.
type PollResult struct {
	Checked int
	Updated int
	Failed  int
}

// PollTracking asks the supplier for the state of up to batch orders that are
// processing or shipped and applies what changed. At most concurrency
// lookups run at once. Per-order failures are combined into the returned
// error; the other orders are still applied.
func (b *Bridge) PollTracking(ctx context.Context, batch, concurrency int) (PollResult, error) {
	candidates, err := b.orders.ListForTracking(ctx, batch)
	if err != nil {
		return PollResult{}, err
	}
	if concurrency <= 0 {
		concurrency = defaultPollConcurrency
	}

	var (
		updated atomic.Int64
		mu      sync.Mutex
		errs    error
		failed  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, order := range candidates {
		g.Go(func() error {
			changed, err := b.pollOne(gctx, order)
			if err != nil {
				mu.Lock()
				failed++
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return nil
			}
			if changed {
				updated.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = multierr.Append(errs, err)
	}

	result := PollResult{Checked: len(candidates), Updated: int(updated.Load()), Failed: failed}
	logCtx := b.logg.WithFields(ctx, map[string]any{
		"checked": result.Checked,
		"updated": result.Updated,
		"failed":  result.Failed,
	})
	b.logg.Info(logCtx, "tracking poll finished")
	return result, errs
}

func (b *Bridge) pollOne(ctx context.Context, order models.Order) (bool, error) {
	ctx = b.logg.WithOrderID(ctx, order.OrderRef)
	detail, err := b.supplier.GetOrderDetail(ctx, derefString(order.SupplierOrderID))
	if err != nil {
		b.logg.Warn(ctx, "supplier order detail unavailable")
		return false, err
	}
	return b.apply(ctx, &order, *detail)
}

// HandleSupplierEvent applies a supplier webhook notification. Notifications
// for orders we do not know are acknowledged and dropped.
func (b *Bridge) HandleSupplierEvent(ctx context.Context, raw []byte) (bool, error) {
	event, err := supplier.ParseWebhook(raw)
	if err != nil {
		return false, err
	}
	ctx = b.logg.WithFields(ctx, map[string]any{
		"supplier_event_id": event.MessageID,
		"supplier_event":    event.Type,
	})

	order, err := b.findEventOrder(ctx, event)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			b.logg.Warn(ctx, "supplier event for unknown order")
			return false, nil
		}
		return false, err
	}

	switch event.Type {
	case supplier.EventTrackingNumberUpdate, supplier.EventOrderDelivered, supplier.EventOrderStatusChange:
	default:
		b.logg.Info(ctx, "supplier event type ignored")
		return false, nil
	}
	return b.apply(b.logg.WithOrderID(ctx, order.OrderRef), order, event.Detail())
}

func (b *Bridge) findEventOrder(ctx context.Context, event *supplier.WebhookEvent) (*models.Order, error) {
	if id := strings.TrimSpace(event.Data.OrderID); id != "" {
		order, err := b.orders.GetBySupplierOrderID(ctx, id)
		if err == nil || !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return order, err
		}
	}
	if ref := strings.TrimSpace(event.Data.OrderNumber); ref != "" {
		return b.orders.Get(ctx, ref)
	}
	return nil, orders.ErrOrderNotFound
}

// apply moves the order forward to match the supplier view. A tracking
// number ships a processing order; a delivered status then closes it.
func (b *Bridge) apply(ctx context.Context, order *models.Order, detail supplier.OrderDetail) (bool, error) {
	tracking := orders.Tracking{
		Number:  detail.TrackingNumber,
		Carrier: detail.Carrier,
		URL:     detail.TrackingURL,
	}
	changed := false

	switch order.Status {
	case enums.OrderStatusProcessing:
		if tracking.Number == "" {
			if detail.Delivered() {
				b.logg.Warn(ctx, "supplier reports delivery before any tracking number")
			}
			return false, nil
		}
		updated, err := b.orders.MarkShipped(ctx, order.OrderRef, tracking)
		if err != nil {
			return false, ignoreRace(err)
		}
		order = updated
		changed = true
	case enums.OrderStatusShipped:
		if tracking.Number != "" && tracking.Number != derefString(order.TrackingNumber) {
			if _, err := b.orders.UpdateTracking(ctx, order.OrderRef, tracking); err != nil {
				return false, ignoreRace(err)
			}
			changed = true
		}
	default:
		return false, nil
	}

	if detail.Delivered() {
		if _, err := b.orders.MarkDelivered(ctx, order.OrderRef); err != nil {
			return changed, ignoreRace(err)
		}
		changed = true
	}
	return changed, nil
}

// ignoreRace drops transition conflicts: another poller or webhook already
// moved the order.
func ignoreRace(err error) error {
	if orders.IsInvalidTransition(err) {
		return nil
	}
	return err
}
