package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateTransaction     OutboxAggregateType = "transaction"
	AggregateMonitoringAlert OutboxAggregateType = "monitoring_alert"
	AggregateNotification    OutboxAggregateType = "notification"
	AggregateDailyReport     OutboxAggregateType = "daily_report"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateTransaction,
	AggregateMonitoringAlert,
	AggregateNotification,
	AggregateDailyReport,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventNotificationRequested OutboxEventType = "notification_requested"
	EventTransactionCompleted  OutboxEventType = "transaction_completed"
	EventTransactionBlocked    OutboxEventType = "transaction_blocked"
	EventDailyReportCompleted  OutboxEventType = "daily_report_completed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventNotificationRequested,
	EventTransactionCompleted,
	EventTransactionBlocked,
	EventDailyReportCompleted,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
