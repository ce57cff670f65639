package cron

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/locks"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/metrics"
)

const defaultInterval = time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	// Locker guards each job by name so only one worker runs it at a time.
	Locker   locks.Locker
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	Now      func() time.Time
}

// Service ticks at Interval and runs every registered job that is due.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locker   locks.Locker
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
	lastRun  map[string]time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locker:   params.Locker,
		metrics:  params.Metrics,
		interval: interval,
		now:      now,
		lastRun:  map[string]time.Time{},
	}, nil
}

// Run ticks until ctx is canceled. The first tick happens immediately.
func (s *Service) Run(ctx context.Context) error {
	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	now := s.now()
	for _, entry := range s.registry.Entries() {
		if ctx.Err() != nil {
			return
		}
		if !s.due(entry, now) {
			continue
		}
		s.runJob(ctx, entry.Job)
		s.lastRun[entry.Job.Name()] = now
	}
}

func (s *Service) due(entry Entry, now time.Time) bool {
	last, ok := s.lastRun[entry.Job.Name()]
	if !ok || entry.Every == 0 {
		return true
	}
	return !now.Before(last.Add(entry.Every))
}

func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	release, err := s.locker.Acquire(jobCtx, locks.ScopeCron, name)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict) {
			s.logg.Info(jobCtx, "job held by another worker; skipping")
			s.metrics.ObserveRun(name, metrics.CronSkipped, 0, s.now())
			return
		}
		s.logg.Error(jobCtx, "job lock failed", err)
		s.metrics.ObserveRun(name, metrics.CronFailed, 0, s.now())
		return
	}
	defer release()

	start := time.Now()
	err = job.Run(jobCtx)
	took := time.Since(start)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(s.logg.WithFields(jobCtx, pkgerrors.LogFields(err)), "job failed", err)
		s.metrics.ObserveRun(name, metrics.CronFailed, took, s.now())
		return
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.ObserveRun(name, metrics.CronSucceeded, took, s.now())
}
