package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/metrics"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxErrorBackoff    = 10 * time.Second
)

type database interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

// sink delivers one message and returns the server-assigned id.
type sink interface {
	Ping(context.Context) error
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) (string, error)
}

type DispatcherParams struct {
	Config   config.OutboxConfig
	Logger   *logger.Logger
	DB       database
	Store    outboxStore
	Registry resolver
	Sink     sink
	Metrics  *metrics.OutboxMetrics
}

// Dispatcher drains committed outbox rows to Pub/Sub. Each batch is claimed
// and marked inside one transaction so concurrent dispatchers never publish
// the same row twice.
type Dispatcher struct {
	logg        *logger.Logger
	db          database
	store       outboxStore
	registry    resolver
	sink        sink
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewDispatcher(p DispatcherParams) (*Dispatcher, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Sink == nil:
		return nil, errors.New("pubsub sink is required")
	}
	d := &Dispatcher{
		logg:        p.Logger,
		db:          p.DB,
		store:       p.Store,
		registry:    p.Registry,
		sink:        p.Sink,
		metrics:     p.Metrics,
		batchSize:   p.Config.BatchSize,
		maxAttempts: p.Config.MaxAttempts,
		poll:        time.Duration(p.Config.PollIntervalMS) * time.Millisecond,
	}
	if d.batchSize <= 0 {
		d.batchSize = defaultBatchSize
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = defaultMaxAttempts
	}
	if d.poll <= 0 {
		d.poll = defaultPoll
	}
	return d, nil
}

// Run drains until ctx is cancelled. A full batch is followed immediately by
// the next one; an empty or partial batch waits one poll interval. Batch
// errors back off exponentially up to maxErrorBackoff.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := d.sink.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}

	wait := d.poll
	for {
		n, err := d.drain(ctx)
		switch {
		case err != nil:
			d.logg.Error(d.logg.WithFields(ctx, pkgerrors.LogFields(err)), "outbox batch failed", err)
			wait = min(wait*2, maxErrorBackoff)
		case n >= d.batchSize:
			wait = d.poll
			continue
		default:
			wait = d.poll
		}
		if err := sleep(ctx, jitter(wait)); err != nil {
			return err
		}
	}
}

type outcome string

const (
	outcomePublished  outcome = "published"
	outcomeRetry      outcome = "retry"
	outcomeDeadLetter outcome = "dead_letter"
)

// drain handles one batch and returns how many rows it claimed.
func (d *Dispatcher) drain(ctx context.Context) (int, error) {
	claimed := 0
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := d.store.FetchUnpublishedForPublish(tx, d.batchSize, d.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		claimed = len(rows)
		for _, row := range rows {
			res := d.deliver(ctx, row)
			if err := d.record(tx, row, res); err != nil {
				return err
			}
			d.metrics.IncPublish(string(row.EventType), string(res.outcome))

			rowCtx := d.logg.WithFields(ctx, res.fields)
			switch res.outcome {
			case outcomePublished:
				d.logg.Debug(rowCtx, "outbox event published")
			case outcomeRetry:
				d.logg.Warn(d.logg.WithField(rowCtx, "error", res.cause.Error()), "outbox publish failed; will retry")
			case outcomeDeadLetter:
				d.logg.Warn(d.logg.WithField(rowCtx, "error", res.cause.Error()), "outbox event dead-lettered")
			}
		}
		return nil
	})
	return claimed, err
}

type delivery struct {
	outcome outcome
	cause   error
	fields  map[string]any
}

func (d *Dispatcher) deliver(ctx context.Context, row models.OutboxEvent) delivery {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount + 1,
	}
	resolved, err := d.registry.Resolve(row)
	if err != nil {
		return delivery{outcomeDeadLetter, err, fields}
	}
	fields["event_id"] = resolved.Envelope.EventID
	fields["topic"] = resolved.Route.Topic
	if resolved.OrderingKey != "" {
		fields["ordering_key"] = resolved.OrderingKey
	}

	sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	serverID, err := d.sink.Send(sendCtx, resolved.Route.Topic, &gcppubsub.Message{
		Data:        row.Payload,
		Attributes:  outbox.Attributes(row, resolved.Envelope),
		OrderingKey: resolved.OrderingKey,
	})
	switch {
	case err == nil:
		fields["message_id"] = serverID
		return delivery{outcomePublished, nil, fields}
	case registry.IsPermanent(err):
		return delivery{outcomeDeadLetter, err, fields}
	case row.AttemptCount+1 >= d.maxAttempts:
		return delivery{outcomeDeadLetter, fmt.Errorf("gave up after %d attempts: %w", d.maxAttempts, err), fields}
	default:
		return delivery{outcomeRetry, err, fields}
	}
}

// record persists the outcome. Dead letters keep their row with the attempt
// count pinned at the ceiling so they are never claimed again.
func (d *Dispatcher) record(tx *gorm.DB, row models.OutboxEvent, res delivery) error {
	var err error
	switch res.outcome {
	case outcomePublished:
		err = d.store.MarkPublishedTx(tx, row.ID)
	case outcomeRetry:
		err = d.store.MarkFailedTx(tx, row.ID, res.cause)
	case outcomeDeadLetter:
		err = d.store.MarkTerminalTx(tx, row.ID, res.cause, d.maxAttempts)
	}
	if err != nil {
		return fmt.Errorf("record %s for %s: %w", res.outcome, row.ID, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jitter spreads d by up to a quarter so idle dispatchers do not poll in step.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(d/4+1)
}
