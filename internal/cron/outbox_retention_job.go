package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 14 * 24 * time.Hour
	defaultDeadAttempts    = 10
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPruner
	// Retention is in days.
	Retention int
	// MinAttempts marks an unpublished row as dead and safe to prune.
	MinAttempts int
}

// NewOutboxRetentionJob removes order and payout events that were published,
// or that exhausted their publish attempts, before the retention window.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		pruner:    params.Repository,
		window:    defaultOutboxRetention,
		deadAfter: defaultDeadAttempts,
		now:       time.Now,
	}
	if params.Retention > 0 {
		job.window = time.Duration(params.Retention) * 24 * time.Hour
	}
	if params.MinAttempts > 0 {
		job.deadAfter = params.MinAttempts
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	pruner    outboxPruner
	window    time.Duration
	deadAfter int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)

	var pruned int64
	if err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.pruner.DeletePublishedBefore(ctx, tx, cutoff, j.deadAfter)
		pruned = n
		return err
	}); err != nil {
		return fmt.Errorf("prune outbox before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if pruned > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff":      cutoff,
			"dead_after":  j.deadAfter,
			"rows_pruned": pruned,
		}), "outbox rows pruned")
	}
	return nil
}
