package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	"github.com/dropone-app/dropone-backend/pkg/logger"
)

// DomainEvent is an order or payout change to announce.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	// DedupeKey separates events of one type on one aggregate, e.g. one per
	// status change. Re-emitting the same key is a no-op.
	DedupeKey  string
	Actor      *ActorRef
	Data       any
	OccurredAt time.Time
}

// Emitter is the write side used by domain services.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit stores event inside tx. It must be the caller's transaction so the
// event exists only if the change it describes commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	if !event.EventType.IsValid() {
		return fmt.Errorf("unknown outbox event type %q", event.EventType)
	}
	if event.AggregateID == uuid.Nil {
		return errors.New("outbox event needs an aggregate id")
	}
	at := event.OccurredAt
	if at.IsZero() {
		at = s.now()
	}

	env, raw, err := sealEnvelope(event.Data, event.Actor, at)
	if err != nil {
		return err
	}
	queued, err := s.repo.Insert(tx, models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		DedupeKey:     event.DedupeKey,
		Payload:       raw,
	})
	if err != nil {
		return fmt.Errorf("queue %s: %w", event.EventType, err)
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":     env.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
			"dedupe_key":   event.DedupeKey,
		})
		if queued {
			s.logg.Info(logCtx, "outbox event queued")
		} else {
			s.logg.Debug(logCtx, "outbox event already queued")
		}
	}
	return nil
}
