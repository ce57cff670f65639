// Package notifications queues fire-and-forget notifications for delivery.
// Delivery itself happens downstream of the outbox publisher.
package notifications

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/pkg/enums"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox/payloads"
)

// Notification is one message for a user id or a role recipient such as
// "role:compliance".
type Notification struct {
	Recipient string
	Title     string
	Body      string
	Data      map[string]string
}

// Notifier sends notifications without surfacing delivery failures.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service writes notification requests to the outbox.
type Service struct {
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires the outbox-backed notifier.
func NewService(tx txRunner, publisher outboxPublisher, logg *logger.Logger) (*Service, error) {
	if tx == nil {
		return nil, errors.New("tx runner required")
	}
	if publisher == nil {
		return nil, errors.New("outbox publisher required")
	}
	return &Service{tx: tx, outbox: publisher, logg: logg}, nil
}

// Notify queues n in its own transaction. Failures are logged and dropped.
func (s *Service) Notify(ctx context.Context, n Notification) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.NotifyTx(ctx, tx, n)
	})
	if err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "recipient", n.Recipient), "notification dropped", err)
	}
}

// NotifyTx queues n on an existing transaction so it is only sent if tx commits.
func (s *Service) NotifyTx(ctx context.Context, tx *gorm.DB, n Notification) error {
	if strings.TrimSpace(n.Recipient) == "" {
		return errors.New("notification recipient required")
	}
	if strings.TrimSpace(n.Title) == "" {
		return errors.New("notification title required")
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   uuid.New(),
		Data: payloads.NotificationRequestedEvent{
			Recipient: n.Recipient,
			Title:     n.Title,
			Body:      n.Body,
			Data:      n.Data,
		},
	})
}
