package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/outbox/idempotency"
	"github.com/dropone-app/dropone-backend/pkg/redis"
)

// Guard short-circuits webhook redeliveries before they reach the database.
// The processed_webhook_events row stays authoritative.
type Guard struct {
	markers *idempotency.Manager
}

func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	markers, err := idempotency.NewManager(store, ttl)
	if err != nil {
		return nil, err
	}
	return &Guard{markers: markers}, nil
}

// CheckAndMark reports whether the event was already seen, marking it otherwise.
func (g *Guard) CheckAndMark(ctx context.Context, provider enums.PaymentProvider, eventID string) (bool, error) {
	seen, err := g.markers.CheckAndMarkKey(ctx, consumerFor(provider), eventID)
	if err != nil {
		return false, fmt.Errorf("webhook guard: %w", err)
	}
	return seen, nil
}

// Release drops the marker so a failed delivery can be retried.
func (g *Guard) Release(ctx context.Context, provider enums.PaymentProvider, eventID string) error {
	return g.markers.DeleteKey(ctx, consumerFor(provider), eventID)
}

func consumerFor(provider enums.PaymentProvider) string {
	return "webhook:" + string(provider)
}
