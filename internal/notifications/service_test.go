package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/pkg/db"
	"github.com/angelmondragon/walletcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox/payloads"
)

func TestNotifyQueuesOutboxEvent(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(db.Wrap(conn), outbox.NewService(outbox.NewRepository(conn), nil), nil)
	require.NoError(t, err)

	svc.Notify(context.Background(), Notification{
		Recipient: "role:compliance",
		Title:     "Suspicious activity",
		Body:      "review WTX123",
		Data:      map[string]string{"reference": "WTX123"},
	})

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, enums.EventNotificationRequested, rows[0].EventType)

	envelope, err := outbox.DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	var payload payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	require.Equal(t, "role:compliance", payload.Recipient)
	require.Equal(t, "WTX123", payload.Data["reference"])
}

type failingOutbox struct{ calls int }

func (f *failingOutbox) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	f.calls++
	return errors.New("insert failed")
}

func TestNotifySwallowsFailures(t *testing.T) {
	conn := dbtest.Open(t)
	pub := &failingOutbox{}
	svc, err := NewService(db.Wrap(conn), pub, nil)
	require.NoError(t, err)

	svc.Notify(context.Background(), Notification{Recipient: "u-1", Title: "hello"})
	require.Equal(t, 1, pub.calls)

	svc.Notify(context.Background(), Notification{Title: "no recipient"})
	require.Equal(t, 1, pub.calls)
}
