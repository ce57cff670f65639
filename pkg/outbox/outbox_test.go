package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox/payloads"
)

func setupOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`
CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`).Error)
	return db
}

func TestEmitWritesEnvelope(t *testing.T) {
	db := setupOutboxDB(t)
	svc := NewService(NewRepository(db), nil)
	aggregateID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   aggregateID,
			Data:          payloads.NotificationRequestedEvent{Recipient: "user:1", Title: "Sent", Body: "ok"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, aggregateID, rows[0].AggregateID)

	envelope, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	require.Equal(t, 1, envelope.SchemaVersion)
	require.Len(t, envelope.EventID, 26)
	require.Equal(t, enums.EventNotificationRequested, envelope.EventType)
	require.Nil(t, envelope.Initiator)

	attrs := Attributes(rows[0], envelope)
	require.Equal(t, envelope.EventID, attrs["event_id"])
	require.Equal(t, aggregateID.String(), attrs["aggregate_id"])
	require.Equal(t, "1", attrs["schema_version"])

	var data payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, "user:1", data.Recipient)
}

func TestEmitIsDiscardedWithRolledBackTransaction(t *testing.T) {
	db := setupOutboxDB(t)
	svc := NewService(NewRepository(db), nil)

	_ = db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventTransactionCompleted,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   uuid.New(),
			Data:          payloads.TransactionCompletedEvent{Reference: "WTX1"},
		}))
		return errors.New("ledger write failed")
	})

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitCarriesInitiator(t *testing.T) {
	db := setupOutboxDB(t)
	svc := NewService(NewRepository(db), nil)
	user := uuid.New()
	at := time.Date(2026, 3, 1, 4, 0, 0, 0, time.FixedZone("PKT", 5*3600))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventTransactionCompleted,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   uuid.New(),
			Initiator:     UserInitiator(&user),
			OccurredAt:    at,
			Data:          payloads.TransactionCompletedEvent{Reference: "WTX2"},
		})
	}))

	var row models.OutboxEvent
	require.NoError(t, db.First(&row).Error)
	envelope, err := DecodeEnvelope(row.Payload)
	require.NoError(t, err)
	require.NotNil(t, envelope.Initiator)
	require.Equal(t, user, *envelope.Initiator.UserID)
	require.True(t, envelope.OccurredAt.Equal(at))
	require.Equal(t, time.UTC, envelope.OccurredAt.Location())
	require.Nil(t, UserInitiator(nil))
}

func TestDecodeEnvelopeRejectsIncompletePayloads(t *testing.T) {
	for _, raw := range []string{`not json`, `{"data":{}}`, `{"event_id":"01J","data":null}`, `{"event_id":"01J"}`} {
		_, err := DecodeEnvelope([]byte(raw))
		require.Error(t, err, raw)
	}
}

func TestEmitRejectsUnknownTypes(t *testing.T) {
	db := setupOutboxDB(t)
	svc := NewService(NewRepository(db), nil)
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: "order_created", AggregateType: enums.AggregateTransaction})
	})
	require.Error(t, err)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: enums.EventTransactionCompleted, AggregateType: enums.AggregateTransaction})
	})
	require.ErrorContains(t, err, "missing aggregate id")
}

func TestRepositoryPublishLifecycleAndRetention(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewRepository(db)
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	published := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventTransactionCompleted, AggregateType: enums.AggregateTransaction, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old}
	pending := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventTransactionCompleted, AggregateType: enums.AggregateTransaction, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old.Add(time.Minute)}
	exhausted := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventTransactionCompleted, AggregateType: enums.AggregateTransaction, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old.Add(2 * time.Minute)}
	for _, row := range []models.OutboxEvent{published, pending, exhausted} {
		require.NoError(t, repo.Insert(db, row))
	}

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkPublishedTx(tx, published.ID); err != nil {
			return err
		}
		if err := repo.MarkFailedTx(tx, pending.ID, errors.New("transient")); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, exhausted.ID, errors.New("bad payload"), 10)
	}))

	var batch []models.OutboxEvent
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = repo.FetchUnpublishedForPublish(tx, 10, 10)
		return err
	}))
	require.Len(t, batch, 1)
	require.Equal(t, pending.ID, batch[0].ID)
	require.Equal(t, 1, batch[0].AttemptCount)

	// Published rows are stamped with the wall clock, so use a cutoff in the future.
	deleted, err := repo.DeletePublishedBefore(context.Background(), nil, time.Now().UTC().Add(time.Hour), 100)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	deadLettered, err := repo.CountDeadLettered(context.Background(), nil, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, deadLettered)

	var remaining []models.OutboxEvent
	require.NoError(t, db.Order("created_at ASC").Find(&remaining).Error)
	require.Len(t, remaining, 2)
}
