package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dropone-app/dropone-backend/pkg/config"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/outbox"
	"github.com/dropone-app/dropone-backend/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "dropone-orders", PayoutsTopic: "dropone-payouts"})
	if err != nil {
		t.Fatalf("NewEventRegistry: %v", err)
	}
	return reg
}

// outboxRow wraps data in a current-version envelope the way Emit stores it.
func outboxRow(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, data any) models.OutboxEvent {
	t.Helper()
	raw, ok := data.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(data); err != nil {
			t.Fatalf("marshal data: %v", err)
		}
	}
	env, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    CurrentVersion,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
		Data:       raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   uuid.New(),
		Payload:       env,
	}
}

func TestResolveRoutesByStream(t *testing.T) {
	reg := testRegistry(t)
	orderID := uuid.New()

	paid := outboxRow(t, enums.EventOrderPaid, enums.AggregateOrder, payloads.OrderPaidEvent{
		OrderID:           orderID,
		OrderRef:          "DO-0A1B2C3D",
		SellerMarginCents: 2700,
	})
	resolved, err := reg.Resolve(paid)
	if err != nil {
		t.Fatalf("resolve order_paid: %v", err)
	}
	if resolved.Descriptor.Topic != "dropone-orders" {
		t.Fatalf("order_paid routed to %q", resolved.Descriptor.Topic)
	}
	event, ok := resolved.Payload.(*payloads.OrderPaidEvent)
	if !ok || event.OrderID != orderID || event.SellerMarginCents != 2700 {
		t.Fatalf("unexpected payload %#v", resolved.Payload)
	}

	failed := outboxRow(t, enums.EventPayoutFailed, enums.AggregatePayout, json.RawMessage(`{"payout_ref":"PO-1","status":"failed"}`))
	resolved, err = reg.Resolve(failed)
	if err != nil {
		t.Fatalf("resolve payout_failed: %v", err)
	}
	if resolved.Descriptor.Topic != "dropone-payouts" {
		t.Fatalf("payout_failed routed to %q", resolved.Descriptor.Topic)
	}

	if topics := reg.Topics(); len(topics) != 2 || topics[0] != "dropone-orders" {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func TestResolveRejectsMalformedRows(t *testing.T) {
	reg := testRegistry(t)
	empty := json.RawMessage(`{}`)

	mismatched := outboxRow(t, enums.EventOrderPaid, enums.AggregatePayout, empty)
	orphan := outboxRow(t, enums.EventOrderPaid, enums.AggregateOrder, empty)
	orphan.AggregateID = uuid.Nil
	truncated := outboxRow(t, enums.EventOrderRefunded, enums.AggregateOrder, empty)
	truncated.Payload = json.RawMessage(`{"data":`)

	rows := map[string]models.OutboxEvent{
		"unknown event":      outboxRow(t, "seller_created", enums.AggregateOrder, empty),
		"aggregate mismatch": mismatched,
		"no aggregate id":    orphan,
		"null data":          outboxRow(t, enums.EventOrderRefunded, enums.AggregateOrder, json.RawMessage("null")),
		"truncated envelope": truncated,
	}
	for name, row := range rows {
		_, err := reg.Resolve(row)
		var permanentErr NonRetryableError
		if !errors.As(err, &permanentErr) {
			t.Fatalf("%s: expected NonRetryableError, got %v", name, err)
		}
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	for _, cfg := range []config.PubSubConfig{
		{OrdersTopic: "dropone-orders"},
		{PayoutsTopic: "dropone-payouts"},
	} {
		if _, err := NewEventRegistry(cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}
