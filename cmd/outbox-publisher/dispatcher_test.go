package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/pkg/config"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/outbox"
	"github.com/dropone-app/dropone-backend/pkg/outbox/payloads"
	"github.com/dropone-app/dropone-backend/pkg/outbox/registry"
)

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	first := newOrderPaidRow(t, 0)
	second := newOrderPaidRow(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("unavailable")},
		fakePublishResult{},
	}}
	d := newTestDispatcher(t, repo, pub, &fakeResolver{}, &fakeDLQ{}, config.OutboxConfig{})

	processed, err := d.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("expected second row published, got %v", repo.published)
	}
}

func TestProcessBatchSetsMessageAttributes(t *testing.T) {
	row := newOrderPaidRow(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	d := newTestDispatcher(t, repo, pub, &fakeResolver{}, &fakeDLQ{}, config.OutboxConfig{})

	if _, err := d.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.sent))
	}
	msg := pub.sent[0]
	if msg.Attributes["event_type"] != string(enums.EventOrderPaid) {
		t.Fatalf("unexpected event_type %q", msg.Attributes["event_type"])
	}
	if msg.Attributes["aggregate_id"] != row.AggregateID.String() {
		t.Fatalf("unexpected aggregate_id %q", msg.Attributes["aggregate_id"])
	}
	if !bytes.Equal(msg.Data, row.Payload) {
		t.Fatalf("expected payload to be forwarded unchanged")
	}
}

func TestProcessBatchBuriesNonRetryable(t *testing.T) {
	row := newOrderPaidRow(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	dlq := &fakeDLQ{}
	resolver := &fakeResolver{err: registry.NewNonRetryableError(errors.New("unsupported event type"))}
	d := newTestDispatcher(t, repo, &fakePublisher{}, resolver, dlq, config.OutboxConfig{})

	if _, err := d.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.EventID != row.ID || entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected dlq entry %+v", entry)
	}
	if !bytes.Equal(entry.Payload, row.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row marked terminal")
	}
}

func TestProcessBatchBuriesAfterMaxAttempts(t *testing.T) {
	row := newOrderPaidRow(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("deadline exceeded")}}}
	dlq := &fakeDLQ{}
	d := newTestDispatcher(t, repo, pub, &fakeResolver{}, dlq, config.OutboxConfig{MaxAttempts: 2})

	if _, err := d.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("expected max_attempts dlq entry, got %+v", dlq.entries)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal row should not be marked for retry")
	}
}

func TestProcessBatchMissingPublisherIsTerminal(t *testing.T) {
	row := newOrderPaidRow(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	dlq := &fakeDLQ{}
	d := newTestDispatcher(t, repo, nil, &fakeResolver{}, dlq, config.OutboxConfig{})

	if _, err := d.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry for unroutable topic")
	}
}

func TestProcessBatchReportsEmpty(t *testing.T) {
	d := newTestDispatcher(t, &fakeRepo{}, &fakePublisher{}, &fakeResolver{}, &fakeDLQ{}, config.OutboxConfig{})

	processed, err := d.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if processed {
		t.Fatalf("empty batch should not report processed")
	}
}

func newTestDispatcher(t *testing.T, repo outboxRepository, pub *fakePublisher, resolver eventResolver, dlq dlqRepository, cfg config.OutboxConfig) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherParams{
		Config:     cfg,
		Logger:     logger.Nop(),
		DB:         fakeDB{},
		Topics:     fakeTopics{},
		Repository: repo,
		DLQ:        dlq,
		Resolver:   resolver,
		PublisherFor: func(string) publisher {
			if pub == nil {
				return nil
			}
			return pub
		},
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d
}

func newOrderPaidRow(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(payloads.OrderPaidEvent{})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       env,
		AttemptCount:  attempts,
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQ struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

// fakeResolver routes every row to the orders topic unless err is set.
type fakeResolver struct {
	err error
}

func (f *fakeResolver) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return nil, err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			Topic:         "orders-topic",
		},
		Envelope: env,
		Payload:  &payloads.OrderPaidEvent{},
	}, nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakeTopics struct{}

func (fakeTopics) Ping(context.Context) error { return nil }

func (fakeTopics) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}
