package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/walletcore-backend/api/controllers"
	"github.com/angelmondragon/walletcore-backend/api/routes"
	"github.com/angelmondragon/walletcore-backend/internal/bootstrap"
	"github.com/angelmondragon/walletcore-backend/pkg/env"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app, err := bootstrap.Start(context.Background(), "api")
	if err != nil {
		bootstrap.Exit("api", err)
	}
	defer app.Close()

	redisClient, err := app.Redis(context.Background())
	if err != nil {
		app.Fatal(context.Background(), "failed to bootstrap redis", err)
	}

	// Cloud Run injects PORT; it wins over config.
	addr := ":" + env.Get("PORT", app.Config.App.Port)

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(app.Config, app.Logger, prometheus.DefaultGatherer,
			controllers.Dependency{Name: "database", Pinger: app.DB},
			controllers.Dependency{Name: "redis", Pinger: redisClient},
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := app.SignalContext()
	defer stop()
	ctx = app.Logger.WithField(ctx, "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error(ctx, "api server shutdown failed", err)
		}
	}()

	app.Logger.Info(ctx, "starting api server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.Fatal(ctx, "api server stopped unexpectedly", err)
	}
	app.Logger.Info(ctx, "api server shut down gracefully")
}
