package main

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/walletcore-backend/internal/bootstrap"
	"github.com/angelmondragon/walletcore-backend/internal/cron"
	"github.com/angelmondragon/walletcore-backend/pkg/locks"
	"github.com/angelmondragon/walletcore-backend/pkg/metrics"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
)

const (
	dailyReportEvery  = time.Hour
	housekeepingEvery = 24 * time.Hour
	cronLockWait      = 50 * time.Millisecond
)

func main() {
	app, err := bootstrap.Start(context.Background(), "cron-worker")
	if err != nil {
		bootstrap.Exit("cron-worker", err)
	}
	defer app.Close()
	ctx, stop := app.SignalContext()
	defer stop()

	redisClient, err := app.Redis(ctx)
	if err != nil {
		app.Fatal(ctx, "failed to bootstrap redis", err)
	}
	svcs, err := buildServices(ctx, app, redisClient)
	if err != nil {
		app.Fatal(ctx, "failed to build services", err)
	}
	registry, err := buildRegistry(app, svcs)
	if err != nil {
		app.Fatal(ctx, "failed to register cron jobs", err)
	}

	// Cron runs take a short-lived Redis lock per job; a held lock means
	// another replica is already on it.
	locker, err := locks.NewRedisLocker(locks.RedisLockerParams{
		Store:  redisClient,
		Logger: app.Logger,
		Wait:   cronLockWait,
		TTL:    app.Config.Cron.LockTTL,
	})
	if err != nil {
		app.Fatal(ctx, "failed to create cron locker", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   app.Logger,
		Registry: registry,
		Locker:   locker,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: app.Config.Cron.Interval,
	})
	if err != nil {
		app.Fatal(ctx, "failed to create cron service", err)
	}

	metrics.Serve(ctx, app.Config.Service.MetricsAddr, prometheus.DefaultGatherer, app.Logger)
	app.Logger.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.Fatal(ctx, "cron worker stopped unexpectedly", err)
	}
	app.Logger.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(app *bootstrap.App, svcs *services) (*cron.Registry, error) {
	cfg, logg := app.Config, app.Logger
	registry := cron.NewRegistry()

	scheduled, err := cron.NewScheduledTransfersJob(cron.ScheduledTransfersJobParams{
		Logger:    logg,
		Transfers: svcs.transfers,
		BatchSize: cfg.Cron.ScheduledBatchSize,
	})
	if err != nil {
		return nil, err
	}
	registry.Register(scheduled, 0)

	daily, err := cron.NewDailyReportJob(cron.DailyReportJobParams{
		Logger:  logg,
		Reports: svcs.reports,
	})
	if err != nil {
		return nil, err
	}
	registry.Register(daily, dailyReportEvery)

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          app.DB,
		Repository:  outbox.NewRepository(app.DB.DB()),
		Metrics:     metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
		Retention:   time.Duration(cfg.Outbox.RetentionDays) * 24 * time.Hour,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		BatchSize:   cfg.Outbox.PruneBatchSize,
	})
	if err != nil {
		return nil, err
	}
	registry.Register(retention, housekeepingEvery)

	if svcs.archiver != nil {
		archive, err := cron.NewAuditArchiveJob(cron.AuditArchiveJobParams{
			Logger:   logg,
			Archiver: svcs.archiver,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(archive, housekeepingEvery)
	}

	return registry, nil
}
