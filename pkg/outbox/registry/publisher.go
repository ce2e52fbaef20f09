package registry

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/dropone-app/dropone-backend/pkg/config"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/outbox"
)

// EventDescriptor is where an event type is published and what it carries.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry routes outbox rows to Pub/Sub topics.
type EventRegistry struct {
	topics map[stream]string
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	if cfg.PayoutsTopic == "" {
		return nil, errors.New("payouts topic is required")
	}
	return &EventRegistry{topics: map[stream]string{
		orderStream:  cfg.OrdersTopic,
		payoutStream: cfg.PayoutsTopic,
	}}, nil
}

// Topics lists the distinct topics, sorted.
func (r *EventRegistry) Topics() []string {
	seen := map[string]bool{}
	var out []string
	for _, topic := range r.topics {
		if !seen[topic] {
			seen[topic] = true
			out = append(out, topic)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve checks the row against its schema and decodes the payload. Every
// error is a NonRetryableError: a malformed row never becomes publishable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	s, ok := schemas[event.EventType]
	if !ok {
		return nil, permanent("unsupported event type %s", event.EventType)
	}
	if s.aggregate != event.AggregateType {
		return nil, permanent("aggregate mismatch: %s belongs to %s, row has %s", event.EventType, s.aggregate, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, permanent("%s row %s has no aggregate id", event.EventType, event.ID)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, permanent("decode envelope: %v", err)
	}
	payload, err := DecodePayload(event.EventType, envelope)
	if err != nil {
		return nil, err
	}

	return &ResolvedEvent{
		Descriptor: EventDescriptor{
			EventType:     event.EventType,
			AggregateType: s.aggregate,
			Topic:         r.topics[s.stream],
		},
		Envelope: envelope,
		Payload:  payload,
	}, nil
}
