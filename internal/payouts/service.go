package payouts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/internal/ledger"
	"github.com/dropone-app/dropone-backend/pkg/backoff"
	"github.com/dropone-app/dropone-backend/pkg/config"
	"github.com/dropone-app/dropone-backend/pkg/db"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/metrics"
	"github.com/dropone-app/dropone-backend/pkg/money"
	"github.com/dropone-app/dropone-backend/pkg/outbox"
	"github.com/dropone-app/dropone-backend/pkg/outbox/payloads"
	"github.com/dropone-app/dropone-backend/pkg/pagination"
	"github.com/dropone-app/dropone-backend/pkg/refs"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type balanceLedger interface {
	Credit(ctx context.Context, tx *gorm.DB, m ledger.Movement) (*models.LedgerEntry, error)
	Debit(ctx context.Context, tx *gorm.DB, m ledger.Movement) (*models.LedgerEntry, error)
}

type limiter interface {
	Allow(ctx context.Context, sellerEmail string) (bool, error)
}

// Processor issues seller payouts. The balance is debited before the rail is
// called and a failed rail call is undone with a compensating credit.
type Processor interface {
	Withdraw(ctx context.Context, req WithdrawRequest) (*models.Payout, error)
	Get(ctx context.Context, payoutRef string) (*models.Payout, error)
	ListSellerPayouts(ctx context.Context, sellerEmail string, params pagination.Params) (*PayoutList, error)
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.Payout, error)
}

type ProcessorParams struct {
	Repo    Repository
	Ledger  balanceLedger
	Outbox  outboxPublisher
	Tx      txRunner
	Rails   []Rail
	Limiter limiter
	Config  config.PayoutConfig
	Retry   backoff.Policy
	Logger  *logger.Logger
	Metrics *metrics.DomainMetrics
}

type processor struct {
	repo     Repository
	ledger   balanceLedger
	outbox   outboxPublisher
	tx       txRunner
	rails    map[enums.PayoutMethod]Rail
	limiter  limiter
	minimum  int64
	currency string
	retry    backoff.Policy
	logg     *logger.Logger
	metrics  *metrics.DomainMetrics
	now      func() time.Time
}

func NewProcessor(params ProcessorParams) (Processor, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	rails := make(map[enums.PayoutMethod]Rail, len(params.Rails))
	for _, rail := range params.Rails {
		if rail == nil {
			continue
		}
		rails[rail.Method()] = rail
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Config.Currency))
	if currency == "" {
		currency = "EUR"
	}
	retry := params.Retry
	if retry.CallTimeout <= 0 {
		retry.CallTimeout = params.Config.RailTimeout
	}
	return &processor{
		repo:     params.Repo,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		tx:       params.Tx,
		rails:    rails,
		limiter:  params.Limiter,
		minimum:  params.Config.MinWithdrawalCents,
		currency: currency,
		retry:    retry,
		logg:     logg,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

func (p *processor) Withdraw(ctx context.Context, req WithdrawRequest) (*models.Payout, error) {
	email := strings.ToLower(strings.TrimSpace(req.SellerEmail))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing")
	}
	ctx = p.logg.WithSellerEmail(ctx, email)

	if p.limiter != nil {
		allowed, err := p.limiter.Allow(ctx, email)
		if err != nil {
			p.logg.Warn(ctx, "withdraw rate limiter unavailable")
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if req.AmountCents < p.minimum {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("minimum withdrawal is %s %s", money.FormatCents(p.minimum), p.currency))
	}

	seller, err := p.repo.FindSeller(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	if seller == nil {
		return nil, ErrSellerNotFound
	}
	method := req.Method
	if method == "" && seller.PayoutMethod != nil {
		method = *seller.PayoutMethod
	}
	destination, ok := seller.PayoutIdentity(method)
	if !ok {
		return nil, &PayoutMethodNotConfiguredError{SellerEmail: email, Method: method}
	}
	rail, ok := p.rails[method]
	if !ok {
		return nil, &PayoutMethodNotConfiguredError{SellerEmail: email, Method: method}
	}

	payout := &models.Payout{
		PayoutRef:   refs.Payout(),
		Email:       email,
		AmountCents: req.AmountCents,
		Currency:    p.currency,
		Method:      method,
		Destination: destination,
		Status:      enums.PayoutStatusPending,
		CreatedAt:   p.now().UTC(),
	}
	if err := p.repo.Create(ctx, payout); err != nil {
		// sqlite reports the column instead of the index name
		if db.IsUniqueViolation(err, "idx_payouts_one_pending") || db.IsUniqueViolation(err, "payouts.email") {
			return nil, ErrPayoutInProgress
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
	}
	ctx = p.logg.WithPayoutID(ctx, payout.PayoutRef)

	if err := p.debit(ctx, payout); err != nil {
		if settleErr := p.fail(ctx, payout, err.Error(), false); settleErr != nil {
			p.logg.Error(ctx, "failed to mark payout failed after debit error", settleErr)
		}
		return nil, err
	}

	reference, railErr := p.send(ctx, rail, payout)
	if railErr != nil {
		p.logg.Error(ctx, "payout rail failed, reversing debit", railErr)
		if err := p.fail(ctx, payout, railErr.Error(), true); err != nil {
			// the debit stands and the payout stays pending for an operator
			p.logg.Error(ctx, "payout reversal failed", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reverse failed payout")
		}
		return nil, &PayoutRailFailure{PayoutRef: payout.PayoutRef, Method: method, Err: railErr}
	}

	if err := p.complete(ctx, payout, reference); err != nil {
		p.logg.Error(ctx, "payout sent but completion not recorded", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout completion")
	}
	p.logg.Info(p.logg.WithField(ctx, "rail_reference", reference), "payout completed")
	return p.Get(ctx, payout.PayoutRef)
}

func (p *processor) debit(ctx context.Context, payout *models.Payout) error {
	return p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := p.ledger.Debit(ctx, tx, ledger.Movement{
			SellerEmail: payout.Email,
			Type:        enums.LedgerEntryPayoutDebit,
			AmountCents: payout.AmountCents,
			PayoutRef:   payout.PayoutRef,
			Reason:      "payout " + payout.PayoutRef,
		})
		return err
	})
}

// send runs the rail under the retry policy. The call is detached from the
// request context so a client disconnect cannot abandon a transfer halfway.
func (p *processor) send(ctx context.Context, rail Rail, payout *models.Payout) (string, error) {
	var reference string
	attempts, err := backoff.Do(context.WithoutCancel(ctx), p.retry, rail.Transient, func(callCtx context.Context) error {
		ref, err := rail.Send(callCtx, RailRequest{
			PayoutRef:   payout.PayoutRef,
			Destination: payout.Destination,
			AmountCents: payout.AmountCents,
			Currency:    payout.Currency,
		})
		if err != nil {
			return err
		}
		reference = ref
		return nil
	})
	if attempts > 1 {
		p.logg.Warn(p.logg.WithField(ctx, "attempts", attempts), "payout rail needed retries")
	}
	return reference, err
}

func (p *processor) complete(ctx context.Context, payout *models.Payout, reference string) error {
	now := p.now().UTC()
	err := p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := p.repo.WithTx(tx).Settle(ctx, payout.PayoutRef, enums.PayoutStatusCompleted, map[string]any{
			"rail_reference": reference,
			"completed_at":   now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout is no longer pending")
		}
		return p.emit(ctx, tx, payout, enums.EventPayoutCompleted, enums.PayoutStatusCompleted, reference, "", now)
	})
	if err == nil {
		p.metrics.Payout(string(payout.Method), string(enums.PayoutStatusCompleted), payout.AmountCents)
	}
	return err
}

// fail marks the payout failed. With reverse set the debit is credited back
// in the same transaction.
func (p *processor) fail(ctx context.Context, payout *models.Payout, reason string, reverse bool) error {
	now := p.now().UTC()
	err := p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := p.repo.WithTx(tx).Settle(ctx, payout.PayoutRef, enums.PayoutStatusFailed, map[string]any{
			"error":     reason,
			"failed_at": now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout is no longer pending")
		}
		if reverse {
			if _, err := p.ledger.Credit(ctx, tx, ledger.Movement{
				SellerEmail: payout.Email,
				Type:        enums.LedgerEntryPayoutReversal,
				AmountCents: payout.AmountCents,
				PayoutRef:   payout.PayoutRef,
				Reason:      "payout " + payout.PayoutRef + " failed: " + reason,
			}); err != nil {
				return err
			}
		}
		return p.emit(ctx, tx, payout, enums.EventPayoutFailed, enums.PayoutStatusFailed, "", reason, now)
	})
	if err == nil {
		p.metrics.Payout(string(payout.Method), string(enums.PayoutStatusFailed), payout.AmountCents)
	}
	return err
}

func (p *processor) emit(ctx context.Context, tx *gorm.DB, payout *models.Payout, eventType enums.OutboxEventType, status enums.PayoutStatus, reference, reason string, at time.Time) error {
	return p.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		DedupeKey:     string(status),
		Actor:         &outbox.ActorRef{Kind: outbox.ActorSeller, ID: payout.Email},
		OccurredAt:    at,
		Data: payloads.PayoutSettledEvent{
			PayoutID:      payout.ID,
			PayoutRef:     payout.PayoutRef,
			SellerEmail:   payout.Email,
			AmountCents:   payout.AmountCents,
			Method:        payout.Method,
			Status:        status,
			RailReference: reference,
			Error:         reason,
			SettledAt:     at,
		},
	})
}

func (p *processor) Get(ctx context.Context, payoutRef string) (*models.Payout, error) {
	payout, err := p.repo.FindByRef(ctx, strings.TrimSpace(payoutRef))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	if payout == nil {
		return nil, ErrPayoutNotFound
	}
	return payout, nil
}

func (p *processor) ListSellerPayouts(ctx context.Context, sellerEmail string, params pagination.Params) (*PayoutList, error) {
	email := strings.ToLower(strings.TrimSpace(sellerEmail))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := p.repo.ListBySeller(ctx, email, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(row models.Payout) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})

	items := make([]PayoutView, len(rows))
	for i, row := range rows {
		items[i] = ToView(row)
	}
	return &PayoutList{Items: items, Cursor: next}, nil
}

func (p *processor) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.Payout, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := p.repo.ListPendingBefore(ctx, p.now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale payouts")
	}
	return rows, nil
}
