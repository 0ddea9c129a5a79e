package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/order-saga/api/controllers"
	"github.com/angelmondragon/order-saga/api/middleware"
	"github.com/angelmondragon/order-saga/internal/orders"
	"github.com/angelmondragon/order-saga/pkg/config"
	"github.com/angelmondragon/order-saga/pkg/logger"
)

// NewRouter wires the order API.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	deps map[string]controllers.Pinger,
	ordersSvc orders.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/orders", controllers.OrdersCreate(ordersSvc, logg))
		r.Get("/events", controllers.EventsList(ordersSvc, logg))
		r.Get("/events/filter", controllers.EventsFilter(ordersSvc, logg))
	})

	return r
}
