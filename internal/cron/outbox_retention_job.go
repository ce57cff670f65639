package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

const (
	defaultOutboxRetention   = 30 * 24 * time.Hour
	defaultOutboxMaxAttempts = 10
	defaultPruneBatch        = 1000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
	CountDeadLettered(ctx context.Context, tx *gorm.DB, maxAttempts int) (int64, error)
}

type outboxGauges interface {
	SetDeadLettered(n int64)
	AddPruned(n int64)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPruner
	Metrics    outboxGauges
	Retention  time.Duration
	// MaxAttempts must equal the publisher's ceiling so both agree on what
	// counts as dead-lettered.
	MaxAttempts int
	BatchSize   int
}

// NewOutboxRetentionJob prunes published outbox rows in short transactions.
// Dead-lettered rows may carry compliance notifications; they are counted and
// never deleted.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		gauges:      params.Metrics,
		retention:   orDefault(params.Retention, defaultOutboxRetention),
		maxAttempts: orDefault(params.MaxAttempts, defaultOutboxMaxAttempts),
		batch:       orDefault(params.BatchSize, defaultPruneBatch),
		now:         time.Now,
	}
	return job, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxPruner
	gauges      outboxGauges
	retention   time.Duration
	maxAttempts int
	batch       int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	var pruned int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("prune outbox after %d rows: %w", pruned, err)
		}
		pruned += n
		if n < int64(j.batch) {
			break
		}
	}

	deadLettered, err := j.repo.CountDeadLettered(ctx, nil, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("count dead-lettered outbox rows: %w", err)
	}
	if j.gauges != nil {
		j.gauges.AddPruned(pruned)
		j.gauges.SetDeadLettered(deadLettered)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":        cutoff,
		"rows_deleted":  pruned,
		"dead_lettered": deadLettered,
	})
	if deadLettered > 0 {
		j.logg.Warn(logCtx, "outbox has dead-lettered events awaiting manual replay")
	}
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
