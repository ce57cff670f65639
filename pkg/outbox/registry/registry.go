// Package registry maps outbox event types to Pub/Sub topics and decodes
// their payloads before publishing.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox/payloads"
)

// Route describes where one event type is published.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	decode      func(json.RawMessage) (any, error)
	orderingKey func(payload any) string
}

// Resolved is an outbox row ready to publish.
type Resolved struct {
	Route    Route
	Envelope outbox.Envelope
	Payload  any
	// OrderingKey is empty when the event may be delivered in any order.
	OrderingKey string
}

// Registry holds one route per event type.
type Registry struct {
	routes map[enums.OutboxEventType]Route
}

// PermanentError marks a row that will never publish, no matter how often
// it is retried.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return PermanentError{Err: err}
}

// IsPermanent reports whether err or anything it wraps is permanent.
func IsPermanent(err error) bool {
	var p PermanentError
	return errors.As(err, &p)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func decodeAs[T any]() func(json.RawMessage) (any, error) {
	return func(raw json.RawMessage) (any, error) {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, err
		}
		if err := validate.Struct(v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// New builds the registry for the configured topics.
func New(cfg config.PubSubConfig) (*Registry, error) {
	notifications := strings.TrimSpace(cfg.NotificationTopic)
	ledger := strings.TrimSpace(cfg.LedgerEventsTopic)
	if notifications == "" || ledger == "" {
		return nil, errors.New("notification and ledger topics are both required")
	}

	routes := []Route{
		{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			Topic:         notifications,
			decode:        decodeAs[payloads.NotificationRequestedEvent](),
		},
		{
			EventType:     enums.EventTransactionCompleted,
			AggregateType: enums.AggregateTransaction,
			Topic:         ledger,
			decode:        decodeAs[payloads.TransactionCompletedEvent](),
			orderingKey:   transactionAccountKey,
		},
		{
			EventType:     enums.EventTransactionBlocked,
			AggregateType: enums.AggregateMonitoringAlert,
			Topic:         ledger,
			decode:        decodeAs[payloads.TransactionBlockedEvent](),
			orderingKey: func(p any) string {
				return "user:" + p.(*payloads.TransactionBlockedEvent).UserID.String()
			},
		},
		{
			EventType:     enums.EventDailyReportCompleted,
			AggregateType: enums.AggregateDailyReport,
			Topic:         ledger,
			decode:        decodeAs[payloads.DailyReportCompletedEvent](),
		},
	}

	reg := &Registry{routes: make(map[enums.OutboxEventType]Route, len(routes))}
	for _, r := range routes {
		reg.routes[r.EventType] = r
	}
	return reg, nil
}

// transactionAccountKey orders completions per debited account, falling back
// to the credited account for deposits.
func transactionAccountKey(p any) string {
	evt := p.(*payloads.TransactionCompletedEvent)
	switch {
	case evt.SourceAccountID != nil:
		return "account:" + evt.SourceAccountID.String()
	case evt.DestinationAccountID != nil:
		return "account:" + evt.DestinationAccountID.String()
	}
	return ""
}

// Topics lists every distinct topic a route publishes to.
func (r *Registry) Topics() []string {
	seen := map[string]bool{}
	var out []string
	for _, route := range r.routes {
		if !seen[route.Topic] {
			seen[route.Topic] = true
			out = append(out, route.Topic)
		}
	}
	return out
}

// Resolve checks row against its route and decodes the payload. Every
// failure is permanent: a malformed row stays malformed.
func (r *Registry) Resolve(row models.OutboxEvent) (*Resolved, error) {
	route, ok := r.routes[row.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("no route for event type %q", row.EventType))
	}
	if route.AggregateType != row.AggregateType {
		return nil, Permanent(fmt.Errorf("%s expects aggregate %s, row has %s", row.EventType, route.AggregateType, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, Permanent(errors.New("row missing aggregate_id"))
	}
	env, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return nil, Permanent(err)
	}
	payload, err := route.decode(env.Data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("%s payload: %w", row.EventType, err))
	}

	resolved := &Resolved{Route: route, Envelope: env, Payload: payload}
	if route.orderingKey != nil {
		resolved.OrderingKey = route.orderingKey(payload)
	}
	return resolved, nil
}
