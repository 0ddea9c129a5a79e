package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/angelmondragon/order-saga/api/responses"
	"github.com/angelmondragon/order-saga/pkg/config"
	pkgerrors "github.com/angelmondragon/order-saga/pkg/errors"
	"github.com/angelmondragon/order-saga/pkg/logger"
)

const envHeader = "X-Saga-Env"

// Pinger is a dependency the readiness check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and reports 503 when one is down.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		var failed []string
		for _, name := range names {
			if err := deps[name].Ping(ctx); err != nil {
				status[name] = "down"
				failed = append(failed, name)
				continue
			}
			status[name] = "up"
		}
		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(map[string]any{"failed": failed}))
			return
		}
		status["status"] = "ready"
		responses.WriteSuccess(w, status)
	}
}
