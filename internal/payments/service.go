package payments

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/internal/ledger"
	"github.com/dropone-app/dropone-backend/internal/orders"
	"github.com/dropone-app/dropone-backend/pkg/db"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/metrics"
	"github.com/dropone-app/dropone-backend/pkg/outbox"
	"github.com/dropone-app/dropone-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type sellerLedger interface {
	EnsureSeller(ctx context.Context, tx *gorm.DB, email string) error
	Credit(ctx context.Context, tx *gorm.DB, m ledger.Movement) (*models.LedgerEntry, error)
}

// Service turns verified payment notifications into orders and seller credits.
type Service interface {
	Ingest(ctx context.Context, payment PaymentCompleted) (*IngestResult, error)
}

type ServiceParams struct {
	Repo     Repository
	Orders   orders.Repository
	Ledger   sellerLedger
	Outbox   outboxPublisher
	Tx       txRunner
	Splitter *Splitter
	Guard    *Guard
	Logger   *logger.Logger
	Metrics  *metrics.DomainMetrics
	Currency string
}

type service struct {
	repo     Repository
	orders   orders.Repository
	ledger   sellerLedger
	outbox   outboxPublisher
	tx       txRunner
	splitter *Splitter
	guard    *Guard
	logg     *logger.Logger
	metrics  *metrics.DomainMetrics
	currency string
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repository required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Splitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "commission splitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "EUR"
	}
	return &service{
		repo:     params.Repo,
		orders:   params.Orders,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		tx:       params.Tx,
		splitter: params.Splitter,
		guard:    params.Guard,
		logg:     logg,
		metrics:  params.Metrics,
		currency: currency,
		now:      time.Now,
	}, nil
}

// Ingest applies a payment exactly once. The order, the dedupe marker, the
// seller credit and the order_paid event commit together or not at all.
func (s *service) Ingest(ctx context.Context, payment PaymentCompleted) (*IngestResult, error) {
	payment.EventID = strings.TrimSpace(payment.EventID)
	payment.StoreSlug = strings.TrimSpace(payment.StoreSlug)
	if err := payment.validate(); err != nil {
		s.metrics.WebhookEvent(string(payment.Provider), metrics.OutcomeRejected)
		return nil, err
	}
	ctx = s.logg.WithEvent(ctx, string(payment.Provider), payment.EventID)

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, payment.Provider, payment.EventID)
		switch {
		case err != nil:
			s.logg.Warn(ctx, "webhook guard unavailable, falling back to database dedupe")
		case seen:
			// The marker is set before the transaction, so it can outlive a
			// delivery that never committed. Only the processed row counts.
			processed, findErr := s.repo.FindProcessed(ctx, payment.Provider, payment.EventID)
			switch {
			case findErr != nil:
				s.logg.Warn(ctx, "could not confirm guarded webhook event, falling back to database dedupe")
			case processed != nil:
				s.metrics.WebhookEvent(string(payment.Provider), metrics.OutcomeDuplicate)
				s.logg.Info(ctx, "duplicate webhook event short-circuited")
				return nil, &DuplicateEventError{Provider: payment.Provider, EventID: payment.EventID}
			default:
				s.logg.Warn(ctx, "webhook guard marked an unrecorded event, processing it")
			}
		}
	}

	order, err := s.apply(ctx, payment)
	if err != nil {
		if IsDuplicateEvent(err) {
			s.metrics.WebhookEvent(string(payment.Provider), metrics.OutcomeDuplicate)
			s.logg.Info(ctx, "duplicate webhook event")
			return nil, err
		}
		if s.guard != nil {
			// a cancelled request must still clear its marker
			if relErr := s.guard.Release(context.WithoutCancel(ctx), payment.Provider, payment.EventID); relErr != nil {
				s.logg.Error(ctx, "failed to release webhook guard", relErr)
			}
		}
		outcome := metrics.OutcomeFailed
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) || pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			outcome = metrics.OutcomeRejected
		}
		s.metrics.WebhookEvent(string(payment.Provider), outcome)
		return nil, err
	}

	s.metrics.WebhookEvent(string(payment.Provider), metrics.OutcomeCreated)
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.OrderRef), map[string]any{
		"store_slug":          order.StoreSlug,
		"amount_paid_cents":   order.AmountPaidCents,
		"seller_margin_cents": order.SellerMarginCents,
	})
	s.logg.Info(logCtx, "order created from payment")
	return &IngestResult{Order: order}, nil
}

func (s *service) apply(ctx context.Context, payment PaymentCompleted) (*models.Order, error) {
	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		store, err := repo.FindStore(ctx, payment.StoreSlug)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
		}
		if store == nil {
			return ErrStoreNotFound
		}

		order := s.buildOrder(payment, store)
		if err := repo.MarkProcessed(ctx, &models.ProcessedWebhookEvent{
			Provider: payment.Provider,
			EventID:  payment.EventID,
			OrderRef: order.OrderRef,
		}); err != nil {
			if db.IsUniqueViolation(err, "") {
				return &DuplicateEventError{Provider: payment.Provider, EventID: payment.EventID}
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark webhook event processed")
		}

		if err := s.ledger.EnsureSeller(ctx, tx, order.SellerEmail); err != nil {
			return err
		}
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if _, err := s.ledger.Credit(ctx, tx, ledger.Movement{
			SellerEmail: order.SellerEmail,
			Type:        enums.LedgerEntryOrderCredit,
			AmountCents: order.SellerMarginCents,
			OrderRef:    order.OrderRef,
			Reason:      "sale " + order.OrderRef,
		}); err != nil {
			return err
		}

		created = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			DedupeKey:     string(payment.Provider) + ":" + payment.EventID,
			Actor:         &outbox.ActorRef{Kind: outbox.ActorProvider, ID: string(payment.Provider)},
			OccurredAt:    order.CreatedAt,
			Data: payloads.OrderPaidEvent{
				OrderID:           order.ID,
				OrderRef:          order.OrderRef,
				StoreSlug:         order.StoreSlug,
				SellerEmail:       order.SellerEmail,
				Provider:          order.PaymentProvider,
				AmountPaidCents:   order.AmountPaidCents,
				SupplierCostCents: order.SupplierCostCents,
				CommissionCents:   order.CommissionCents,
				SellerMarginCents: order.SellerMarginCents,
				Currency:          order.Currency,
				PaidAt:            order.CreatedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) buildOrder(payment PaymentCompleted, store *models.Store) *models.Order {
	split := s.splitter.Compute(payment.AmountPaidCents, store.SupplierCostCents)
	currency := strings.ToUpper(strings.TrimSpace(payment.Currency))
	if currency == "" {
		currency = s.currency
	}

	order := &models.Order{
		OrderRef:          orders.NewOrderRef(),
		StoreSlug:         store.Slug,
		SellerEmail:       strings.ToLower(strings.TrimSpace(store.OwnerEmail)),
		ProductID:         store.ProductID,
		ProductVariantID:  store.ProductVariantID,
		ProductName:       store.ProductName,
		Quantity:          1,
		ShippingAddress:   payment.ShippingAddress,
		Currency:          currency,
		AmountPaidCents:   payment.AmountPaidCents,
		SupplierCostCents: split.SupplierCostCents,
		CommissionCents:   split.CommissionCents,
		SellerMarginCents: split.SellerMarginCents,
		Status:            enums.OrderStatusPending,
		PaymentProvider:   payment.Provider,
		ProviderEventID:   payment.EventID,
		CreatedAt:         s.now().UTC(),
	}
	if email := strings.TrimSpace(payment.Customer.Email); email != "" {
		order.CustomerEmail = &email
	}
	if name := strings.TrimSpace(payment.Customer.Name); name != "" {
		order.CustomerName = &name
	}
	if ref := strings.TrimSpace(payment.ProviderRef); ref != "" {
		switch payment.Provider {
		case enums.PaymentProviderStripe:
			order.PaymentSessionID = &ref
		case enums.PaymentProviderPayPal:
			order.PayPalOrderID = &ref
		}
	}
	return order
}
