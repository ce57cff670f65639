package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/walletcore-backend/internal/bootstrap"
	"github.com/angelmondragon/walletcore-backend/pkg/metrics"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox"
	"github.com/angelmondragon/walletcore-backend/pkg/outbox/registry"
	"github.com/angelmondragon/walletcore-backend/pkg/pubsub"
)

func main() {
	app, err := bootstrap.Start(context.Background(), "outbox-publisher")
	if err != nil {
		bootstrap.Exit("outbox-publisher", err)
	}
	defer app.Close()
	ctx, stop := app.SignalContext()
	defer stop()

	routes, err := registry.New(app.Config.PubSub)
	if err != nil {
		app.Fatal(ctx, "failed to build event registry", err)
	}

	sink, err := pubsub.NewClient(ctx, app.Config.GCP, routes.Topics(), app.Logger)
	if err != nil {
		app.Fatal(ctx, "failed to bootstrap pubsub", err)
	}
	app.Defer("pubsub", sink.Close)

	dispatcher, err := NewDispatcher(DispatcherParams{
		Config:   app.Config.Outbox,
		Logger:   app.Logger,
		DB:       app.DB,
		Store:    outbox.NewRepository(app.DB.DB()),
		Registry: routes,
		Sink:     sink,
		Metrics:  metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		app.Fatal(ctx, "failed to create outbox dispatcher", err)
	}

	metrics.Serve(ctx, app.Config.Service.MetricsAddr, prometheus.DefaultGatherer, app.Logger)
	app.Logger.Info(ctx, "starting outbox publisher")
	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.Fatal(ctx, "outbox publisher stopped unexpectedly", err)
	}
	app.Logger.Info(ctx, "outbox publisher shutting down gracefully")
}
