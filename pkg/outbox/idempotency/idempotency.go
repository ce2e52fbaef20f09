// Package idempotency remembers which events a consumer already handled.
//
// Markers live in Redis under do:idempotency:evt:processed:<consumer>:<id>
// and expire after the configured TTL. They only save work on redelivery;
// exactly-once effects are still enforced by database constraints.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropone-app/dropone-backend/pkg/redis"
)

var (
	ErrConsumerRequired = errors.New("consumer name is required")
	ErrIDRequired       = errors.New("event id is required")
)

type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager accepts a zero ttl, which keeps markers until deleted.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed reports whether consumer already saw the outbox
// event, and marks it seen when it had not.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, ErrIDRequired
	}
	return m.CheckAndMarkKey(ctx, consumer, eventID.String())
}

// CheckAndMarkKey takes provider-issued ids such as Stripe event ids.
func (m *Manager) CheckAndMarkKey(ctx context.Context, consumer, id string) (bool, error) {
	key, err := m.key(consumer, id)
	if err != nil {
		return false, err
	}
	fresh, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	if eventID == uuid.Nil {
		return ErrIDRequired
	}
	return m.DeleteKey(ctx, consumer, eventID.String())
}

// DeleteKey forgets a marker so the next delivery is processed again.
func (m *Manager) DeleteKey(ctx context.Context, consumer, id string) error {
	key, err := m.key(consumer, id)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer, id string) (string, error) {
	if consumer == "" {
		return "", ErrConsumerRequired
	}
	if id = strings.TrimSpace(id); id == "" {
		return "", ErrIDRequired
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, id), nil
}
