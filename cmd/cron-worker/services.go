package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/walletcore-backend/internal/accounts"
	"github.com/angelmondragon/walletcore-backend/internal/audit"
	"github.com/angelmondragon/walletcore-backend/internal/bootstrap"
	"github.com/angelmondragon/walletcore-backend/internal/ledger"
	"github.com/angelmondragon/walletcore-backend/internal/limits"
	"github.com/angelmondragon/walletcore-backend/internal/monitoring"
	"github.com/angelmondragon/walletcore-backend/internal/notifications"
	"github.com/angelmondragon/walletcore-backend/internal/reports"
	"github.com/angelmondragon/walletcore-backend/internal/screening"
	"github.com/angelmondragon/walletcore-backend/internal/transfers"
	"github.com/angelmondragon/walletcore-backend/pkg/bigquery"
	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/locks"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/metrics"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
	"github.com/angelmondragon/walletcore-backend/pkg/redis"
	"github.com/angelmondragon/walletcore-backend/pkg/storage/gcs"
)

const sanctionsListTTL = 5 * time.Minute

type services struct {
	transfers *transfers.Service
	reports   *reports.Service
	archiver  *audit.Archiver
}

// buildServices wires the domain services the jobs drive. Optional clients
// (GeoIP, BigQuery, GCS) are released through app.
func buildServices(ctx context.Context, app *bootstrap.App, redisClient *redis.Client) (*services, error) {
	out := &services{}
	cfg, logg, dbClient := app.Config, app.Logger, app.DB
	conn := dbClient.DB()

	location, err := cfg.Ledger.Location()
	if err != nil {
		return nil, err
	}

	auditMetrics := metrics.NewAuditMetrics(prometheus.DefaultRegisterer)
	auditRepo := audit.NewRepository(conn)
	auditor, err := audit.NewService(audit.ServiceParams{
		Repository:   auditRepo,
		IntegrityKey: cfg.Audit.IntegrityKey,
		Logger:       logg,
		Metrics:      auditMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("audit service: %w", err)
	}

	locker, err := locks.NewRedisLocker(locks.RedisLockerParams{
		Store:  redisClient,
		Logger: logg,
		Wait:   cfg.Ledger.LockWait,
		TTL:    cfg.Ledger.LockTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("redis locker: %w", err)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	notifier, err := notifications.NewService(dbClient, outboxSvc, logg)
	if err != nil {
		return nil, fmt.Errorf("notifications service: %w", err)
	}

	accountsRepo := accounts.NewRepository(conn)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		TxRunner:      dbClient,
		Repository:    ledger.NewRepository(conn),
		Accounts:      accountsRepo,
		Locker:        locker,
		Outbox:        outboxSvc,
		Metrics:       metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		Logger:        logg,
		Currency:      cfg.Ledger.Currency,
		Location:      location,
		DBLockTimeout: cfg.Ledger.DBLockTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	limitsSvc, err := limits.NewService(limits.ServiceParams{
		TxRunner:   dbClient,
		Repository: limits.NewRepository(conn),
		Locker:     locker,
		Location:   location,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("limits service: %w", err)
	}

	screener, err := buildScreener(cfg, logg, screening.NewRepository(conn))
	if err != nil {
		return nil, err
	}

	monitoringParams := monitoring.ServiceParams{
		TxRunner:            dbClient,
		Repository:          monitoring.NewRepository(conn),
		Accounts:            accountsRepo,
		Screener:            screener,
		Outbox:              outboxSvc,
		Notifier:            notifier,
		Auditor:             auditor,
		Metrics:             metrics.NewMonitoringMetrics(prometheus.DefaultRegisterer),
		Logger:              logg,
		Thresholds:          monitoring.ThresholdsFromConfig(cfg.Monitoring),
		Location:            location,
		Currency:            cfg.Ledger.Currency,
		ComplianceRecipient: cfg.Monitoring.ComplianceRecipient,
		RuleTimeout:         cfg.Monitoring.RuleTimeout,
	}
	geo, err := monitoring.OpenGeoIP(cfg.Monitoring.GeoIPDatabasePath)
	if err != nil {
		return nil, err
	}
	if geo != nil {
		monitoringParams.GeoIP = geo
		app.Defer("geoip", geo.Close)
	} else {
		logg.Warn(ctx, "geoip database not configured; ip-based geographic risk disabled")
	}
	monitoringSvc, err := monitoring.NewService(monitoringParams)
	if err != nil {
		return nil, fmt.Errorf("monitoring service: %w", err)
	}

	out.transfers, err = transfers.NewService(transfers.ServiceParams{
		Limits:     limitsSvc,
		Ledger:     ledgerSvc,
		Monitoring: monitoringSvc,
		Accounts:   accountsRepo,
		Repository: transfers.NewRepository(conn),
		Auditor:    auditor,
		Logger:     logg,

		MaxAttempts:  cfg.Cron.ScheduledMaxAttempts,
		RetryBackoff: cfg.Cron.ScheduledRetryBackoff,
		ClaimLease:   cfg.Cron.ScheduledLease,
	})
	if err != nil {
		return nil, fmt.Errorf("transfers service: %w", err)
	}

	reportParams := reports.ServiceParams{
		TxRunner:            dbClient,
		Repository:          reports.NewRepository(conn),
		Ledger:              ledgerSvc,
		Monitoring:          monitoringSvc,
		Outbox:              outboxSvc,
		Notifier:            notifier,
		Auditor:             auditor,
		Logger:              logg,
		Location:            location,
		Currency:            cfg.Ledger.Currency,
		OperationsRecipient: cfg.Ledger.OperationsRecipient,
	}
	if cfg.FeatureFlags.BigQueryExport {
		bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			return nil, fmt.Errorf("bigquery client: %w", err)
		}
		app.Defer("bigquery", bq.Close)
		reportParams.Exporter = bq
		reportParams.ExportTable = bq.DailyReportsTable()
	}
	out.reports, err = reports.NewService(reportParams)
	if err != nil {
		return nil, fmt.Errorf("reports service: %w", err)
	}

	if cfg.FeatureFlags.AuditArchival {
		store, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		app.Defer("gcs", store.Close)
		out.archiver, err = audit.NewArchiver(audit.ArchiverParams{
			Repository:     auditRepo,
			Store:          store,
			Logger:         logg,
			Metrics:        auditMetrics,
			RetentionYears: cfg.Audit.RetentionYears,
			BatchSize:      cfg.Audit.ArchiveBatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("audit archiver: %w", err)
		}
	}

	return out, nil
}

func buildScreener(cfg *config.Config, logg *logger.Logger, repo screening.Repository) (*screening.Screener, error) {
	params := screening.ScreenerParams{
		Local:  screening.NewListMatcher(repo, cfg.Monitoring.SanctionsMatchScore, sanctionsListTTL),
		Logger: logg,
	}
	if cfg.FeatureFlags.RemoteScreening {
		remote, err := screening.NewRemoteClient(cfg.Screening, nil)
		if err != nil {
			return nil, fmt.Errorf("remote screening client: %w", err)
		}
		params.Remote = remote
	}
	return screening.NewScreener(params)
}
