package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/walletcore-backend/api/controllers"
	"github.com/angelmondragon/walletcore-backend/api/middleware"
	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/metrics"
)

// NewRouter builds the operations surface: liveness, readiness and the
// Prometheus scrape endpoint.
func NewRouter(cfg *config.Config, logg *logger.Logger, gatherer prometheus.Gatherer, deps ...controllers.Dependency) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps...))
	})

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", metrics.Handler(gatherer))

	return r
}
