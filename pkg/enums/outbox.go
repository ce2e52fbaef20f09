package enums

// OutboxAggregateType names the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateOrder  OutboxAggregateType = "order"
	AggregatePayout OutboxAggregateType = "payout"
)

var aggregateTypes = []OutboxAggregateType{AggregateOrder, AggregatePayout}

func (a OutboxAggregateType) IsValid() bool { return isMember(a, aggregateTypes) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseMember("aggregate type", value, aggregateTypes)
}

// OutboxEventType names a domain event published through the outbox.
type OutboxEventType string

const (
	EventOrderPaid          OutboxEventType = "order_paid"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventOrderRefunded      OutboxEventType = "order_refunded"
	EventPayoutCompleted    OutboxEventType = "payout_completed"
	EventPayoutFailed       OutboxEventType = "payout_failed"
)

var outboxEventTypes = []OutboxEventType{
	EventOrderPaid,
	EventOrderStatusChanged,
	EventOrderRefunded,
	EventPayoutCompleted,
	EventPayoutFailed,
}

func (e OutboxEventType) IsValid() bool { return isMember(e, outboxEventTypes) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseMember("event type", value, outboxEventTypes)
}

// OutboxDLQErrorReason records why the publisher gave up on an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
