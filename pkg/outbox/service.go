package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

// DomainEvent is what producers hand to Emit. OccurredAt defaults to now and
// SchemaVersion to 1.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Initiator     *Initiator
	Data          any
	SchemaVersion int
	OccurredAt    time.Time
}

// Service writes events into the outbox inside the caller's transaction.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit queues event on tx. The row becomes visible to the publisher only if
// tx commits, so a rolled back ledger write never announces itself.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("outbox emit requires a transaction")
	}
	if !event.EventType.IsValid() || !event.AggregateType.IsValid() {
		return fmt.Errorf("unknown outbox event %q on aggregate %q", event.EventType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return fmt.Errorf("outbox event %s missing aggregate id", event.EventType)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	now := s.now().UTC()
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	version := event.SchemaVersion
	if version == 0 {
		version = 1
	}
	env := Envelope{
		SchemaVersion: version,
		EventID:       ulid.Make().String(),
		EventType:     event.EventType,
		OccurredAt:    occurred.UTC(),
		Initiator:     event.Initiator,
		Data:          data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	if err := s.repo.Insert(tx, models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
		CreatedAt:     now,
	}); err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":     env.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}
