package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/dropone-app/dropone-backend/internal/orders"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
	"github.com/dropone-app/dropone-backend/pkg/outbox"
	"github.com/dropone-app/dropone-backend/pkg/outbox/payloads"
	"github.com/dropone-app/dropone-backend/pkg/outbox/registry"
)

const fulfillmentConsumerName = "fulfillment"

type submitter interface {
	Submit(ctx context.Context, orderRef string) (*models.Order, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer submits orders to the supplier as order_paid events arrive.
type Consumer struct {
	bridge       submitter
	subscription *pubsub.Subscriber
	manager      idempotencyChecker
	logg         *logger.Logger
}

// NewConsumer builds the order_paid consumer. subscription may be nil when
// only Process is used.
func NewConsumer(bridge submitter, subscription *pubsub.Subscriber, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if bridge == nil {
		return nil, fmt.Errorf("fulfillment bridge required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		bridge:       bridge,
		subscription: subscription,
		manager:      manager,
		logg:         logg,
	}, nil
}

// Run receives messages until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("orders subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logCtx := c.logg.WithField(ctx, "message_id", msg.ID)
		var envelope outbox.PayloadEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			c.logg.Error(logCtx, "failed to decode envelope", err)
			msg.Ack()
			return
		}
		eventType := enums.OutboxEventType(msg.Attributes["event_type"])
		if err := c.Process(ctx, eventType, envelope); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Process handles one envelope. A returned error means the message should be
// redelivered.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})
	if eventType != enums.EventOrderPaid {
		c.logg.Debug(logCtx, "event not handled by fulfillment consumer")
		return nil
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return nil
	}

	decoded, err := registry.DecodePayload(eventType, envelope)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode order_paid payload", err)
		return nil
	}
	payload, _ := decoded.(*payloads.OrderPaidEvent)
	if payload == nil || payload.OrderRef == "" {
		c.logg.Error(logCtx, "failed to decode order_paid payload", fmt.Errorf("order ref missing"))
		return nil
	}
	logCtx = c.logg.WithOrderID(logCtx, payload.OrderRef)

	already, err := c.manager.CheckAndMarkProcessed(ctx, fulfillmentConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return err
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	if _, err := c.bridge.Submit(logCtx, payload.OrderRef); err != nil {
		switch {
		case IsSupplierOrderError(err):
			// recorded on the order; an operator retries it
			return nil
		case orders.IsInvalidTransition(err):
			c.logg.Info(logCtx, "order already submitted")
			return nil
		case pkgerrors.HasCode(err, pkgerrors.CodeNotFound):
			c.logg.Warn(logCtx, "order_paid for unknown order")
			return nil
		}
		c.logg.Error(logCtx, "order submission failed", err)
		if delErr := c.manager.Delete(context.WithoutCancel(ctx), fulfillmentConsumerName, eventID); delErr != nil {
			// redeliveries are skipped as duplicates until the marker expires
			c.logg.Error(logCtx, "failed to clear idempotency marker", delErr)
		}
		return err
	}
	return nil
}
