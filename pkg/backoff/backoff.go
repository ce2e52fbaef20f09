// Package backoff runs outbound calls under a bounded exponential retry policy.
package backoff

import (
	"context"
	"time"

	retry "github.com/sethvargo/go-retry"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaximumBackoff = 5 * time.Second
)

// Policy bounds a retried call. Attempts counts the first try.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
	Jitter         time.Duration
	CallTimeout    time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff <= 0 {
		p.MaximumBackoff = defaultMaximumBackoff
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = p.InitialBackoff
	}
	return p
}

func (p Policy) backoff() retry.Backoff {
	b := retry.NewExponential(p.InitialBackoff)
	if p.Jitter > 0 {
		b = retry.WithJitter(p.Jitter, b)
	}
	b = retry.WithCappedDuration(p.MaximumBackoff, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// Do calls fn until it succeeds, returns an error transient rejects, or the
// attempts run out. Each call gets its own CallTimeout. It returns how many
// attempts were made and the last error.
func Do(ctx context.Context, p Policy, transient func(error) bool, fn func(ctx context.Context) error) (int, error) {
	p = p.normalized()
	attempts := 0
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		callCtx := ctx
		if p.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
			defer cancel()
		}
		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if transient != nil && transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	return attempts, err
}
