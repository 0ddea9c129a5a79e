package platform

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/order-saga/api/controllers"
	"github.com/angelmondragon/order-saga/api/routes"
	"github.com/angelmondragon/order-saga/internal/participant"
	"github.com/angelmondragon/order-saga/pkg/bus"
	"github.com/angelmondragon/order-saga/pkg/config"
	"github.com/angelmondragon/order-saga/pkg/db"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/metrics"
	"github.com/angelmondragon/order-saga/pkg/migrate"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

// Runnable is a consumer loop.
type Runnable interface {
	Run(ctx context.Context) error
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors plus the saga metrics.
func NewRegistry() (*prometheus.Registry, *metrics.SagaMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewSagaMetrics(reg)
}

// RunWithOps runs the consumer next to the ops server and returns when
// either stops. A consumer returning nil only happens on shutdown.
func RunWithOps(ctx context.Context, cfg *config.Config, logg *logger.Logger, consumer Runnable, deps map[string]controllers.Pinger, reg prometheus.Gatherer) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Run(ctx)
	})
	if cfg.App.MetricsAddr != "" {
		ops := routes.NewOpsRouter(cfg, logg, deps, reg)
		g.Go(func() error {
			return Serve(ctx, cfg.App.MetricsAddr, ops, logg)
		})
	}
	return g.Wait()
}

// StepFactory builds a participant step on top of the service database.
type StepFactory func(cfg *config.Config, client *db.Client) (participant.Step, error)

// RunParticipant connects the database and the bus, then consumes the
// forward and rollback topics of the step built by build until ctx ends or
// a message fails.
func RunParticipant(ctx context.Context, cfg *config.Config, logg *logger.Logger, service string, build StepFactory) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrapping database: %w", err)
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("running dev migrations: %w", err)
	}

	transport, err := OpenBus(ctx, cfg, service, logg)
	if err != nil {
		return fmt.Errorf("bootstrapping bus: %w", err)
	}
	defer func() {
		err = multierr.Append(err, transport.Close())
	}()

	step, err := build(cfg, dbClient)
	if err != nil {
		return err
	}

	reg, m := NewRegistry()
	consumer, err := NewParticipantConsumer(step, saga.DefaultTable(), transport, logg, m)
	if err != nil {
		return err
	}

	deps := map[string]controllers.Pinger{"db": dbClient, "bus": transport}
	return RunWithOps(ctx, cfg, logg, consumer, deps, reg)
}

// NewParticipantConsumer binds step to its topics on transport.
func NewParticipantConsumer(step participant.Step, table *saga.Table, transport bus.Transport, logg *logger.Logger, m *metrics.SagaMetrics) (*participant.Consumer, error) {
	runner, err := participant.NewRunner(step, transport, logg, participant.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	return participant.NewConsumer(runner, table, transport, logg, m)
}
