package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/order-saga/api/controllers"
	"github.com/angelmondragon/order-saga/api/middleware"
	"github.com/angelmondragon/order-saga/pkg/config"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/metrics"
)

// NewOpsRouter serves the health endpoints and metrics of a saga worker.
func NewOpsRouter(
	cfg *config.Config,
	logg *logger.Logger,
	deps map[string]controllers.Pinger,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer(logg))

	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Get("/health/ready", controllers.HealthReady(cfg, logg, deps))
	r.Get("/healthz", controllers.HealthReady(cfg, logg, deps))
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	}
	return r
}
