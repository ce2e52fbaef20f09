package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/outbox"
	"github.com/dropone-app/dropone-backend/pkg/outbox/payloads"
)

// CurrentVersion is the only envelope version this consumer understands.
const CurrentVersion = outbox.EnvelopeVersion

type stream int

const (
	orderStream stream = iota
	payoutStream
)

type schema struct {
	aggregate enums.OutboxAggregateType
	stream    stream
	payload   func() any
}

// schemas is shared by the publisher and by consumers so both sides agree on
// what each event carries.
var schemas = map[enums.OutboxEventType]schema{
	enums.EventOrderPaid:          {enums.AggregateOrder, orderStream, func() any { return &payloads.OrderPaidEvent{} }},
	enums.EventOrderStatusChanged: {enums.AggregateOrder, orderStream, func() any { return &payloads.OrderStatusChangedEvent{} }},
	enums.EventOrderRefunded:      {enums.AggregateOrder, orderStream, func() any { return &payloads.OrderRefundedEvent{} }},
	enums.EventPayoutCompleted:    {enums.AggregatePayout, payoutStream, func() any { return &payloads.PayoutSettledEvent{} }},
	enums.EventPayoutFailed:       {enums.AggregatePayout, payoutStream, func() any { return &payloads.PayoutSettledEvent{} }},
}

// NonRetryableError marks a row or message that will never succeed, so the
// publisher buries it and consumers ack it.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// DecodePayload returns the typed payload (a pointer to a payloads struct)
// carried by env. Unknown types, unsupported versions and malformed data are
// NonRetryableError.
func DecodePayload(eventType enums.OutboxEventType, env outbox.PayloadEnvelope) (any, error) {
	s, ok := schemas[eventType]
	if !ok {
		return nil, permanent("unsupported event type %s", eventType)
	}
	if env.Version != CurrentVersion {
		return nil, permanent("%s: unsupported envelope version %d", eventType, env.Version)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("%s: payload missing", eventType)
	}
	payload := s.payload()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, permanent("decode %s payload: %v", eventType, err)
	}
	return payload, nil
}
