package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropone-app/dropone-backend/internal/orders"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/outbox"
	"github.com/dropone-app/dropone-backend/pkg/outbox/payloads"
)

type stubSubmitter struct {
	err  error
	refs []string
}

func (s *stubSubmitter) Submit(_ context.Context, ref string) (*models.Order, error) {
	s.refs = append(s.refs, ref)
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{OrderRef: ref, Status: enums.OrderStatusProcessing}, nil
}

type memoryIdempotency struct {
	seen      map[uuid.UUID]bool
	deleted   []uuid.UUID
	deleteErr error
}

func (m *memoryIdempotency) CheckAndMarkProcessed(_ context.Context, _ string, id uuid.UUID) (bool, error) {
	if m.seen[id] {
		return true, nil
	}
	m.seen[id] = true
	return false, nil
}

func (m *memoryIdempotency) Delete(_ context.Context, _ string, id uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.seen, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func paidEnvelope(t *testing.T, eventID uuid.UUID, orderRef string) outbox.PayloadEnvelope {
	t.Helper()
	data, err := json.Marshal(payloads.OrderPaidEvent{OrderID: uuid.New(), OrderRef: orderRef, StoreSlug: "glow-lamp"})
	require.NoError(t, err)
	return outbox.PayloadEnvelope{Version: 1, EventID: eventID.String(), Data: data}
}

func newConsumer(t *testing.T, submit *stubSubmitter) (*Consumer, *memoryIdempotency) {
	t.Helper()
	manager := &memoryIdempotency{seen: map[uuid.UUID]bool{}}
	consumer, err := NewConsumer(submit, nil, manager, logger.Nop())
	require.NoError(t, err)
	return consumer, manager
}

func TestConsumerSubmitsPaidOrderOnce(t *testing.T) {
	submit := &stubSubmitter{}
	consumer, _ := newConsumer(t, submit)
	envelope := paidEnvelope(t, uuid.New(), "DO-0000AAAA")

	require.NoError(t, consumer.Process(context.Background(), enums.EventOrderPaid, envelope))
	require.NoError(t, consumer.Process(context.Background(), enums.EventOrderPaid, envelope))
	assert.Equal(t, []string{"DO-0000AAAA"}, submit.refs)
}

func TestConsumerSkipsOtherEvents(t *testing.T) {
	submit := &stubSubmitter{}
	consumer, _ := newConsumer(t, submit)

	require.NoError(t, consumer.Process(context.Background(), enums.EventPayoutCompleted, paidEnvelope(t, uuid.New(), "DO-0000AAAA")))
	assert.Empty(t, submit.refs)
}

func TestConsumerAcksRecordedFailures(t *testing.T) {
	for name, err := range map[string]error{
		"supplier failure": &SupplierOrderError{OrderRef: "DO-0000AAAA", Attempts: 3, Err: errors.New("boom")},
		"already placed":   &orders.InvalidTransitionError{OrderRef: "DO-0000AAAA", From: enums.OrderStatusProcessing, To: enums.OrderStatusProcessing},
		"unknown order":    orders.ErrOrderNotFound,
	} {
		t.Run(name, func(t *testing.T) {
			consumer, manager := newConsumer(t, &stubSubmitter{err: err})
			require.NoError(t, consumer.Process(context.Background(), enums.EventOrderPaid, paidEnvelope(t, uuid.New(), "DO-0000AAAA")))
			assert.Empty(t, manager.deleted)
		})
	}
}

func TestConsumerRedeliversOnInfrastructureError(t *testing.T) {
	submit := &stubSubmitter{err: errors.New("connection refused")}
	consumer, manager := newConsumer(t, submit)
	eventID := uuid.New()

	err := consumer.Process(context.Background(), enums.EventOrderPaid, paidEnvelope(t, eventID, "DO-0000AAAA"))
	require.Error(t, err)
	assert.Equal(t, []uuid.UUID{eventID}, manager.deleted)

	submit.err = nil
	require.NoError(t, consumer.Process(context.Background(), enums.EventOrderPaid, paidEnvelope(t, eventID, "DO-0000AAAA")))
	assert.Len(t, submit.refs, 2)
}

func TestConsumerLogsMarkerCleanupFailure(t *testing.T) {
	submit := &stubSubmitter{err: errors.New("connection refused")}
	manager := &memoryIdempotency{seen: map[uuid.UUID]bool{}, deleteErr: errors.New("redis timeout")}
	buf := &bytes.Buffer{}
	consumer, err := NewConsumer(submit, nil, manager, logger.New(logger.Options{ServiceName: "fulfillment-test", Output: buf}))
	require.NoError(t, err)

	err = consumer.Process(context.Background(), enums.EventOrderPaid, paidEnvelope(t, uuid.New(), "DO-0000AAAA"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, manager.deleted)
	assert.Contains(t, buf.String(), "failed to clear idempotency marker")
	assert.Contains(t, buf.String(), "redis timeout")
}
