package registry

import (
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox/payloads"
)

func TestResolveTransactionCompletedOrdersByDebitedAccount(t *testing.T) {
	reg := newTestRegistry(t)
	source, dest := uuid.New(), uuid.New()

	resolved, err := reg.Resolve(row(t, enums.EventTransactionCompleted, enums.AggregateTransaction, payloads.TransactionCompletedEvent{
		Reference:            "WTX01JABCDEF0000000000000000",
		Type:                 enums.TransactionTypeTransfer,
		Amount:               decimal.RequireFromString("3000"),
		Currency:             "PKR",
		SourceAccountID:      &source,
		DestinationAccountID: &dest,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Route.Topic != "ledger-topic" {
		t.Fatalf("unexpected topic %q", resolved.Route.Topic)
	}
	if resolved.OrderingKey != "account:"+source.String() {
		t.Fatalf("unexpected ordering key %q", resolved.OrderingKey)
	}
	payload, ok := resolved.Payload.(*payloads.TransactionCompletedEvent)
	if !ok || !payload.Amount.Equal(decimal.RequireFromString("3000")) {
		t.Fatalf("unexpected payload %T %+v", resolved.Payload, resolved.Payload)
	}
}

func TestResolveDepositOrdersByCreditedAccount(t *testing.T) {
	reg := newTestRegistry(t)
	dest := uuid.New()
	resolved, err := reg.Resolve(row(t, enums.EventTransactionCompleted, enums.AggregateTransaction, payloads.TransactionCompletedEvent{
		Reference:            "WTX01JDEPOSIT000000000000000",
		Type:                 enums.TransactionTypeDeposit,
		Currency:             "PKR",
		DestinationAccountID: &dest,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.OrderingKey != "account:"+dest.String() {
		t.Fatalf("unexpected ordering key %q", resolved.OrderingKey)
	}
}

func TestResolveNotificationIsUnordered(t *testing.T) {
	reg := newTestRegistry(t)
	resolved, err := reg.Resolve(row(t, enums.EventNotificationRequested, enums.AggregateNotification,
		payloads.NotificationRequestedEvent{Recipient: "role:compliance", Title: "t", Body: "b"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Route.Topic != "notification-topic" || resolved.OrderingKey != "" {
		t.Fatalf("unexpected route %+v key %q", resolved.Route, resolved.OrderingKey)
	}
}

func TestResolveFailuresArePermanent(t *testing.T) {
	reg := newTestRegistry(t)
	valid := payloads.DailyReportCompletedEvent{ReportDate: "2026-03-01", Status: enums.DailyReportCompleted}

	unknown := row(t, enums.OutboxEventType("order_created"), enums.AggregateTransaction, valid)
	mismatch := row(t, enums.EventDailyReportCompleted, enums.AggregateTransaction, valid)
	noAggregate := row(t, enums.EventDailyReportCompleted, enums.AggregateDailyReport, valid)
	noAggregate.AggregateID = uuid.Nil
	badDate := row(t, enums.EventDailyReportCompleted, enums.AggregateDailyReport,
		payloads.DailyReportCompletedEvent{ReportDate: "01/03/2026", Status: enums.DailyReportCompleted})
	emptyAlerts := row(t, enums.EventTransactionBlocked, enums.AggregateMonitoringAlert,
		payloads.TransactionBlockedEvent{Reference: "WTX1", UserID: uuid.New()})
	nullData := row(t, enums.EventDailyReportCompleted, enums.AggregateDailyReport, nil)

	cases := map[string]models.OutboxEvent{
		"unknown type":       unknown,
		"aggregate mismatch": mismatch,
		"missing aggregate":  noAggregate,
		"bad report date":    badDate,
		"no alert ids":       emptyAlerts,
		"null data":          nullData,
	}
	for name, event := range cases {
		_, err := reg.Resolve(event)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !IsPermanent(err) {
			t.Fatalf("%s: expected permanent error, got %v", name, err)
		}
	}
}

func TestPermanentWrapping(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
	base := errors.New("schema drift")
	err := Permanent(base)
	if !errors.Is(err, base) || !IsPermanent(err) {
		t.Fatalf("expected wrapped permanent error")
	}
	if IsPermanent(base) {
		t.Fatalf("plain error is not permanent")
	}
}

func TestNewRequiresTopics(t *testing.T) {
	if _, err := New(config.PubSubConfig{NotificationTopic: "n"}); err == nil {
		t.Fatalf("expected error without ledger topic")
	}
	topics := newTestRegistry(t).Topics()
	sort.Strings(topics)
	if len(topics) != 2 || topics[0] != "ledger-topic" || topics[1] != "notification-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(config.PubSubConfig{NotificationTopic: "notification-topic", LedgerEventsTopic: "ledger-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func row(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, data any) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env, err := json.Marshal(outbox.Envelope{
		SchemaVersion: 1,
		EventID:       "01JQ0000000000000000000000",
		EventType:     eventType,
		OccurredAt:    time.Now().UTC(),
		Data:          raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   uuid.New(),
		Payload:       env,
	}
}
