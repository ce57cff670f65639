// Package bootstrap holds the startup sequence shared by every binary:
// environment, config, logger, database and shutdown plumbing.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/db"
	"github.com/angelmondragon/walletcore-backend/pkg/env"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/migrate"
	"github.com/angelmondragon/walletcore-backend/pkg/redis"
)

type closer struct {
	name string
	fn   func() error
}

// App is a started process. Resources registered with Defer are released by
// Close in reverse order.
type App struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client

	closers []closer
}

// Start loads .env (optional) and config, builds the process logger, connects
// Postgres and applies embedded migrations in dev. On failure everything
// already opened is closed again.
func Start(ctx context.Context, kind string) (*App, error) {
	boot := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		boot.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = kind

	app := &App{
		Kind:   kind,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       cfg.App.LogLevel,
			WarnStack:   cfg.App.LogWarnStack,
			Format:      cfg.App.LogFormat,
		}),
	}

	app.DB, err = db.New(ctx, cfg.DB, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	app.Defer("database", app.DB.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, app.Logger, app.DB); err != nil {
		app.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return app, nil
}

// Redis connects the shared Redis client and schedules its close.
func (a *App) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, a.Config.Redis, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	a.Defer("redis", client.Close)
	return client, nil
}

// Defer registers fn to run on Close.
func (a *App) Defer(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases deferred resources, newest first, and logs what failed.
// It is safe to call more than once.
func (a *App) Close() {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	if errs != nil {
		a.Logger.Error(context.Background(), "error releasing resources", errs)
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the process
// identity fields every log entry should have.
func (a *App) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = a.Logger.WithFields(ctx, map[string]any{
		"env":         a.Config.App.Env,
		"serviceKind": a.Kind,
		"instance":    env.InstanceID(),
	})
	return ctx, stop
}

// Fatal logs err, releases resources and exits non-zero.
func (a *App) Fatal(ctx context.Context, msg string, err error) {
	a.Logger.Error(ctx, msg, err)
	a.Close()
	os.Exit(1)
}

// Exit reports a Start failure when no App exists yet.
func Exit(kind string, err error) {
	logger.New(logger.Options{ServiceName: kind}).Error(context.Background(), "failed to start", err)
	os.Exit(1)
}
