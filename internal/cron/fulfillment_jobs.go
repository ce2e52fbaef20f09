package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/dropone-app/dropone-backend/internal/fulfillment"
	"github.com/dropone-app/dropone-backend/pkg/logger"
)

type trackingPoller interface {
	PollTracking(ctx context.Context, batch, concurrency int) (fulfillment.PollResult, error)
}

type pendingSweeper interface {
	SweepPending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type TrackingPollJobParams struct {
	Logger      *logger.Logger
	Bridge      trackingPoller
	BatchSize   int
	Concurrency int
}

// NewTrackingPollJob refreshes supplier tracking for in-flight orders.
func NewTrackingPollJob(params TrackingPollJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Bridge == nil {
		return nil, fmt.Errorf("fulfillment bridge required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &trackingPollJob{logg: params.Logger, bridge: params.Bridge, batch: batch, concurrency: params.Concurrency}, nil
}

type trackingPollJob struct {
	logg        *logger.Logger
	bridge      trackingPoller
	batch       int
	concurrency int
}

func (j *trackingPollJob) Name() string { return "tracking-poll" }

func (j *trackingPollJob) Run(ctx context.Context) error {
	result, err := j.bridge.PollTracking(ctx, j.batch, j.concurrency)
	if err != nil {
		// some lookups failed; the rest were applied and the next cycle retries
		logCtx := j.logg.WithField(ctx, "failed", result.Failed)
		j.logg.Warn(logCtx, "tracking poll had supplier errors")
		if result.Checked > 0 && result.Failed < result.Checked {
			return nil
		}
		return err
	}
	return nil
}

type PendingSweepJobParams struct {
	Logger *logger.Logger
	Bridge pendingSweeper
	Age    time.Duration
	Limit  int
}

// NewPendingSweepJob resubmits pending orders whose paid event never arrived.
func NewPendingSweepJob(params PendingSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Bridge == nil {
		return nil, fmt.Errorf("fulfillment bridge required")
	}
	age := params.Age
	if age <= 0 {
		age = 15 * time.Minute
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	return &pendingSweepJob{logg: params.Logger, bridge: params.Bridge, age: age, limit: limit}, nil
}

type pendingSweepJob struct {
	logg   *logger.Logger
	bridge pendingSweeper
	age    time.Duration
	limit  int
}

func (j *pendingSweepJob) Name() string { return "pending-order-sweep" }

func (j *pendingSweepJob) Run(ctx context.Context) error {
	placed, err := j.bridge.SweepPending(ctx, j.age, j.limit)
	if err != nil {
		return fmt.Errorf("pending sweep: %w", err)
	}
	if placed > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "placed", placed), "placed orders missed by the order_paid consumer")
	}
	return nil
}
