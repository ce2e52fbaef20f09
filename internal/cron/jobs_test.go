package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropone-app/dropone-backend/internal/fulfillment"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/logger"
)

type fakeBridge struct {
	result   fulfillment.PollResult
	pollErr  error
	batch    int
	conc     int
	sweepAge time.Duration
	placed   int
	sweepErr error
}

func (f *fakeBridge) PollTracking(_ context.Context, batch, concurrency int) (fulfillment.PollResult, error) {
	f.batch, f.conc = batch, concurrency
	return f.result, f.pollErr
}

func (f *fakeBridge) SweepPending(_ context.Context, olderThan time.Duration, _ int) (int, error) {
	f.sweepAge = olderThan
	return f.placed, f.sweepErr
}

func TestTrackingPollJob(t *testing.T) {
	bridge := &fakeBridge{result: fulfillment.PollResult{Checked: 5, Updated: 2}}
	job, err := NewTrackingPollJob(TrackingPollJobParams{Logger: logger.Nop(), Bridge: bridge, Concurrency: 4})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 100, bridge.batch)
	assert.Equal(t, 4, bridge.conc)

	// partial failures are retried next cycle
	bridge.result = fulfillment.PollResult{Checked: 5, Failed: 1}
	bridge.pollErr = errors.New("supplier timeout")
	require.NoError(t, job.Run(context.Background()))

	bridge.result = fulfillment.PollResult{Checked: 5, Failed: 5}
	require.Error(t, job.Run(context.Background()))
}

func TestPendingSweepJob(t *testing.T) {
	bridge := &fakeBridge{placed: 2}
	job, err := NewPendingSweepJob(PendingSweepJobParams{Logger: logger.Nop(), Bridge: bridge})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 15*time.Minute, bridge.sweepAge)

	bridge.sweepErr = errors.New("db down")
	require.Error(t, job.Run(context.Background()))
}

type fakeStalePayouts struct {
	rows []models.Payout
}

func (f fakeStalePayouts) ListStalePending(context.Context, time.Duration, int) ([]models.Payout, error) {
	return f.rows, nil
}

func TestStalePayoutJob(t *testing.T) {
	job, err := NewStalePayoutJob(StalePayoutJobParams{Logger: logger.Nop(), Payouts: fakeStalePayouts{}})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	job, err = NewStalePayoutJob(StalePayoutJobParams{Logger: logger.Nop(), Payouts: fakeStalePayouts{rows: []models.Payout{{PayoutRef: "PO-1", AmountCents: 2000}}}})
	require.NoError(t, err)
	assert.ErrorContains(t, job.Run(context.Background()), "1 payout(s) pending")
}
