package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
)

// Envelope is the JSON document stored in outbox_events.payload and sent
// verbatim as the Pub/Sub message body.
type Envelope struct {
	SchemaVersion int                   `json:"schema_version"`
	EventID       string                `json:"event_id"`
	EventType     enums.OutboxEventType `json:"event_type"`
	OccurredAt    time.Time             `json:"occurred_at"`
	Initiator     *Initiator            `json:"initiator,omitempty"`
	Data          json.RawMessage       `json:"data"`
}

// Initiator names the wallet user or internal process behind an event.
type Initiator struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	System string     `json:"system,omitempty"`
}

// UserInitiator returns nil for a nil id.
func UserInitiator(id *uuid.UUID) *Initiator {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return &Initiator{UserID: id}
}

// DecodeEnvelope parses a stored payload and rejects envelopes without an id
// or data.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventID == "" {
		return Envelope{}, errors.New("envelope missing event_id")
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Envelope{}, errors.New("envelope missing data")
	}
	return env, nil
}

// Attributes are the Pub/Sub message attributes subscribers filter on.
func Attributes(row models.OutboxEvent, env Envelope) map[string]string {
	attrs := map[string]string{
		"event_id":       env.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"schema_version": fmt.Sprint(env.SchemaVersion),
		"occurred_at":    env.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if env.Initiator != nil && env.Initiator.System != "" {
		attrs["initiator"] = env.Initiator.System
	}
	return attrs
}
