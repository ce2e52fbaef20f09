package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/logger"
)

type stalePayouts interface {
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.Payout, error)
}

type StalePayoutJobParams struct {
	Logger  *logger.Logger
	Payouts stalePayouts
	Age     time.Duration
}

// NewStalePayoutJob reports payouts stuck in pending. Such a payout was
// debited but neither settled nor reversed, so an operator has to check the
// rail before touching it.
func NewStalePayoutJob(params StalePayoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payouts processor required")
	}
	age := params.Age
	if age <= 0 {
		age = time.Hour
	}
	return &stalePayoutJob{logg: params.Logger, payouts: params.Payouts, age: age}, nil
}

type stalePayoutJob struct {
	logg    *logger.Logger
	payouts stalePayouts
	age     time.Duration
}

func (j *stalePayoutJob) Name() string { return "stale-payout-alert" }

func (j *stalePayoutJob) Run(ctx context.Context) error {
	stale, err := j.payouts.ListStalePending(ctx, j.age, 100)
	if err != nil {
		return fmt.Errorf("list stale payouts: %w", err)
	}
	for _, payout := range stale {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"payout_id":    payout.PayoutRef,
			"seller_email": payout.Email,
			"amount_cents": payout.AmountCents,
			"method":       payout.Method,
			"created_at":   payout.CreatedAt,
		})
		j.logg.Warn(logCtx, "payout stuck in pending")
	}
	if len(stale) > 0 {
		return fmt.Errorf("%d payout(s) pending longer than %s", len(stale), j.age)
	}
	return nil
}
