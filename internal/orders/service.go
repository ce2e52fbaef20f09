package orders

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/internal/ledger"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/metrics"
	"github.com/dropone-app/dropone-backend/pkg/outbox"
	"github.com/dropone-app/dropone-backend/pkg/outbox/payloads"
	"github.com/dropone-app/dropone-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type refundLedger interface {
	DebitAvailable(ctx context.Context, tx *gorm.DB, m ledger.Movement) (*ledger.Shortfall, error)
}

// Service drives orders through the fulfillment state machine.
type Service interface {
	Get(ctx context.Context, orderRef string) (*models.Order, error)
	GetBySupplierOrderID(ctx context.Context, supplierOrderID string) (*models.Order, error)
	MarkProcessing(ctx context.Context, orderRef, supplierOrderID string, attempts int) (*models.Order, error)
	MarkSubmitted(ctx context.Context, orderRef, supplierOrderID string, attempts int) (*models.Order, error)
	MarkSubmitFailed(ctx context.Context, orderRef, reason string, attempts int) (*models.Order, error)
	MarkShipped(ctx context.Context, orderRef string, tracking Tracking) (*models.Order, error)
	UpdateTracking(ctx context.Context, orderRef string, tracking Tracking) (*models.Order, error)
	MarkDelivered(ctx context.Context, orderRef string) (*models.Order, error)
	MarkError(ctx context.Context, orderRef, reason string, attempts int) (*models.Order, error)
	Refund(ctx context.Context, orderRef string, actor *outbox.ActorRef) (*RefundResult, error)
	ListSellerOrders(ctx context.Context, sellerEmail string, params pagination.Params, status *enums.OrderStatus) (*OrderList, error)
	ListForTracking(ctx context.Context, limit int) ([]models.Order, error)
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.Order, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	ledger  refundLedger
	logg    *logger.Logger
	metrics *metrics.DomainMetrics
	now     func() time.Time
}

// NewService wires the order state machine.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, ledger refundLedger, logg *logger.Logger, m *metrics.DomainMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outbox,
		ledger:  ledger,
		logg:    logg,
		metrics: m,
		now:     time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, orderRef string) (*models.Order, error) {
	ref := strings.TrimSpace(orderRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindByRef(ctx, ref)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *service) GetBySupplierOrderID(ctx context.Context, supplierOrderID string) (*models.Order, error) {
	id := strings.TrimSpace(supplierOrderID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier order id is required")
	}
	order, err := s.repo.FindBySupplierOrderID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by supplier id")
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// MarkProcessing records the supplier order id: pending|error -> processing.
func (s *service) MarkProcessing(ctx context.Context, orderRef, supplierOrderID string, attempts int) (*models.Order, error) {
	return s.markProcessing(ctx, orderRef, supplierOrderID, attempts, nil)
}

// MarkSubmitted is MarkProcessing for a supplier call that started while the
// order was submittable. It fails with InvalidTransitionError once another
// submission has recorded its outcome.
func (s *service) MarkSubmitted(ctx context.Context, orderRef, supplierOrderID string, attempts int) (*models.Order, error) {
	return s.markProcessing(ctx, orderRef, supplierOrderID, attempts, submittableStatuses)
}

func (s *service) markProcessing(ctx context.Context, orderRef, supplierOrderID string, attempts int, sources []enums.OrderStatus) (*models.Order, error) {
	if strings.TrimSpace(supplierOrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier order id is required")
	}
	return s.transition(ctx, transitionInput{
		orderRef: orderRef,
		to:       enums.OrderStatusProcessing,
		sources:  sources,
		updates: func(*models.Order, time.Time) map[string]any {
			return map[string]any{
				"supplier_order_id":    supplierOrderID,
				"error":                nil,
				"fulfillment_attempts": gorm.Expr("fulfillment_attempts + ?", attempts),
			}
		},
	})
}

// MarkShipped stores tracking details: processing -> shipped.
func (s *service) MarkShipped(ctx context.Context, orderRef string, tracking Tracking) (*models.Order, error) {
	if strings.TrimSpace(tracking.Number) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required")
	}
	return s.transition(ctx, transitionInput{
		orderRef: orderRef,
		to:       enums.OrderStatusShipped,
		updates: func(_ *models.Order, now time.Time) map[string]any {
			updates := trackingUpdates(tracking)
			updates["shipped_at"] = now
			return updates
		},
	})
}

// UpdateTracking refreshes tracking details on an already shipped order
// without changing its status.
func (s *service) UpdateTracking(ctx context.Context, orderRef string, tracking Tracking) (*models.Order, error) {
	order, err := s.Get(ctx, orderRef)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusShipped {
		return nil, &InvalidTransitionError{OrderRef: order.OrderRef, From: order.Status, To: enums.OrderStatusShipped}
	}
	if strings.TrimSpace(tracking.Number) == "" {
		return order, nil
	}
	ok, err := s.repo.UpdateTracking(ctx, order.OrderRef, enums.OrderStatusShipped, trackingUpdates(tracking))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update tracking")
	}
	if !ok {
		return nil, &InvalidTransitionError{OrderRef: order.OrderRef, From: order.Status, To: enums.OrderStatusShipped}
	}
	return s.Get(ctx, order.OrderRef)
}

// MarkDelivered closes the order: shipped -> delivered.
func (s *service) MarkDelivered(ctx context.Context, orderRef string) (*models.Order, error) {
	return s.transition(ctx, transitionInput{
		orderRef: orderRef,
		to:       enums.OrderStatusDelivered,
		updates: func(_ *models.Order, now time.Time) map[string]any {
			return map[string]any{"delivered_at": now}
		},
	})
}

// MarkError records a fulfillment failure. The seller credit is kept.
func (s *service) MarkError(ctx context.Context, orderRef, reason string, attempts int) (*models.Order, error) {
	return s.markError(ctx, orderRef, reason, attempts, nil)
}

// MarkSubmitFailed is MarkError for a failed supplier call. An order another
// submission already moved to processing keeps its supplier order.
func (s *service) MarkSubmitFailed(ctx context.Context, orderRef, reason string, attempts int) (*models.Order, error) {
	return s.markError(ctx, orderRef, reason, attempts, submittableStatuses)
}

func (s *service) markError(ctx context.Context, orderRef, reason string, attempts int, sources []enums.OrderStatus) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "fulfillment failed"
	}
	return s.transition(ctx, transitionInput{
		orderRef: orderRef,
		to:       enums.OrderStatusError,
		sources:  sources,
		updates: func(*models.Order, time.Time) map[string]any {
			return map[string]any{
				"error":                reason,
				"fulfillment_attempts": gorm.Expr("fulfillment_attempts + ?", attempts),
			}
		},
	})
}

// Refund moves the order to refunded and takes back as much of the seller
// margin as the balance allows, in the same transaction.
func (s *service) Refund(ctx context.Context, orderRef string, actor *outbox.ActorRef) (*RefundResult, error) {
	result := &RefundResult{}
	order, err := s.transition(ctx, transitionInput{
		orderRef: orderRef,
		to:       enums.OrderStatusRefunded,
		actor:    actor,
		updates: func(_ *models.Order, now time.Time) map[string]any {
			return map[string]any{"refunded_at": now}
		},
		after: func(ctx context.Context, tx *gorm.DB, order *models.Order) error {
			shortfall, err := s.ledger.DebitAvailable(ctx, tx, ledger.Movement{
				SellerEmail: order.SellerEmail,
				Type:        enums.LedgerEntryRefundDebit,
				AmountCents: order.SellerMarginCents,
				OrderRef:    order.OrderRef,
				Reason:      "refund " + order.OrderRef,
			})
			if err != nil {
				return err
			}
			result.DebitedCents = shortfall.DebitedCents
			result.UnrecoveredCents = shortfall.UnrecoveredCents

			if shortfall.UnrecoveredCents > 0 {
				logCtx := s.logg.WithFields(ctx, map[string]any{
					"order_id":          order.OrderRef,
					"seller_email":      order.SellerEmail,
					"unrecovered_cents": shortfall.UnrecoveredCents,
				})
				s.logg.Warn(logCtx, "refund margin exceeds seller balance")
			}

			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderRefunded,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				DedupeKey:     "refund",
				Actor:         actor,
				Data: payloads.OrderRefundedEvent{
					OrderID:          order.ID,
					OrderRef:         order.OrderRef,
					SellerEmail:      order.SellerEmail,
					DebitedCents:     shortfall.DebitedCents,
					UnrecoveredCents: shortfall.UnrecoveredCents,
					RefundedAt:       derefTime(order.RefundedAt),
				},
			})
		},
	})
	if err != nil {
		return nil, err
	}
	result.Order = order
	result.OrderID = order.OrderRef
	return result, nil
}

func (s *service) ListSellerOrders(ctx context.Context, sellerEmail string, params pagination.Params, status *enums.OrderStatus) (*OrderList, error) {
	email := strings.ToLower(strings.TrimSpace(sellerEmail))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing")
	}
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}

	query := ListQuery{Limit: pagination.LimitWithBuffer(params.Limit), Status: status}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, err := s.repo.ListBySeller(ctx, email, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list seller orders")
	}

	rows, nextCursor := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})

	items := make([]OrderSummary, len(rows))
	for i, row := range rows {
		items[i] = ToSummary(row)
	}
	return &OrderList{Items: items, Cursor: nextCursor}, nil
}

func (s *service) ListForTracking(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := s.repo.ListForTracking(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders for tracking")
	}
	return rows, nil
}

func (s *service) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := s.repo.ListPendingBefore(ctx, s.now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale pending orders")
	}
	return rows, nil
}

type transitionInput struct {
	orderRef string
	to       enums.OrderStatus
	// sources, when set, narrows the statuses the edge may leave from.
	sources  []enums.OrderStatus
	actor    *outbox.ActorRef
	updates  func(order *models.Order, now time.Time) map[string]any
	after    func(ctx context.Context, tx *gorm.DB, order *models.Order) error
}

// transition applies one graph edge as a conditional update and emits
// order_status_changed in the same transaction.
func (s *service) transition(ctx context.Context, in transitionInput) (*models.Order, error) {
	ref := strings.TrimSpace(in.orderRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	var updated *models.Order
	var from enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByRef(ctx, ref)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return ErrOrderNotFound
		}
		from = order.Status
		if !CanTransition(from, in.to) || (len(in.sources) > 0 && !slices.Contains(in.sources, from)) {
			return &InvalidTransitionError{OrderRef: ref, From: from, To: in.to}
		}

		now := s.now().UTC()
		var updates map[string]any
		if in.updates != nil {
			updates = in.updates(order, now)
		}
		ok, err := repo.Transition(ctx, ref, []enums.OrderStatus{from}, in.to, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return &InvalidTransitionError{OrderRef: ref, From: from, To: in.to}
		}

		updated, err = repo.FindByRef(ctx, ref)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		if in.after != nil {
			if err := in.after(ctx, tx, updated); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   updated.ID,
			DedupeKey:     fmt.Sprintf("%s>%s#%d", from, in.to, updated.FulfillmentAttempts),
			Actor:         actorOrSystem(in.actor),
			OccurredAt:    now,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:        updated.ID,
				OrderRef:       updated.OrderRef,
				SellerEmail:    updated.SellerEmail,
				From:           from,
				To:             in.to,
				TrackingNumber: derefString(updated.TrackingNumber),
				Carrier:        derefString(updated.Carrier),
				Error:          derefString(updated.Error),
				ChangedAt:      now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(in.to))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": updated.OrderRef,
		"from":     from,
		"to":       in.to,
	})
	s.logg.Info(logCtx, "order status changed")
	return updated, nil
}

func trackingUpdates(tracking Tracking) map[string]any {
	updates := map[string]any{"tracking_number": strings.TrimSpace(tracking.Number)}
	if carrier := strings.TrimSpace(tracking.Carrier); carrier != "" {
		updates["carrier"] = carrier
	}
	if url := strings.TrimSpace(tracking.URL); url != "" {
		updates["tracking_url"] = url
	}
	return updates
}

func actorOrSystem(actor *outbox.ActorRef) *outbox.ActorRef {
	if actor != nil {
		return actor
	}
	return &outbox.ActorRef{Kind: outbox.ActorSystem}
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func derefTime(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return *value
}
