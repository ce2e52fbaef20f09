package payouts

import (
	"context"
	"errors"
	"strings"
	"time"
)

type fixedWindow interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// WithdrawLimiter caps withdrawal requests per seller in a fixed Redis window.
type WithdrawLimiter struct {
	store  fixedWindow
	limit  int64
	window time.Duration
}

func NewWithdrawLimiter(store fixedWindow, limit int, window time.Duration) (*WithdrawLimiter, error) {
	if store == nil {
		return nil, errors.New("rate limit store is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limit and window must be positive")
	}
	return &WithdrawLimiter{store: store, limit: int64(limit), window: window}, nil
}

// Allow counts one request for the seller and reports whether it fits the window.
func (l *WithdrawLimiter) Allow(ctx context.Context, sellerEmail string) (bool, error) {
	scope := "withdraw:" + strings.ToLower(strings.TrimSpace(sellerEmail))
	allowed, _, err := l.store.FixedWindowAllow(ctx, scope, l.limit, l.window)
	return allowed, err
}
