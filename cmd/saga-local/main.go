// Command saga-local runs the order API, the orchestrator and every
// participant in one process over the in-memory bus. It is meant for local
// demos against a single database, typically SQLite.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/order-saga/api/controllers"
	"github.com/angelmondragon/order-saga/api/routes"
	"github.com/angelmondragon/order-saga/internal/inventory"
	"github.com/angelmondragon/order-saga/internal/orchestrator"
	"github.com/angelmondragon/order-saga/internal/orders"
	"github.com/angelmondragon/order-saga/internal/participant"
	"github.com/angelmondragon/order-saga/internal/payments"
	"github.com/angelmondragon/order-saga/internal/platform"
	"github.com/angelmondragon/order-saga/internal/productvalidation"
	"github.com/angelmondragon/order-saga/pkg/bus/memory"
	"github.com/angelmondragon/order-saga/pkg/config"
	"github.com/angelmondragon/order-saga/pkg/db"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/migrate"
	"github.com/angelmondragon/order-saga/pkg/outbox"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

const serviceName = "saga-local"

func main() {
	cfg, logg, err := platform.Load(serviceName)
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "saga-local stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "saga-local shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrapping database: %w", err)
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	if err := migrate.Up(ctx, sqlDB, migrate.Dialect(dbClient.Dialect())); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	b := memory.New()
	defer func() {
		err = multierr.Append(err, b.Close())
	}()

	reg, m := platform.NewRegistry()
	table := saga.DefaultTable()

	orch, err := orchestrator.NewService(table, b, logg, orchestrator.WithMetrics(m))
	if err != nil {
		return err
	}
	orchConsumer, err := orchestrator.NewConsumer(orch, b, nil, logg, m)
	if err != nil {
		return err
	}

	validation, err := productvalidation.NewService(productvalidation.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		return err
	}
	payment, err := payments.NewService(payments.NewRepository(dbClient.DB()), dbClient, decimal.NewFromFloat(cfg.Saga.PaymentMinAmount))
	if err != nil {
		return err
	}
	stock, err := inventory.NewService(inventory.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		return err
	}

	consumers := []platform.Runnable{orchConsumer}
	for _, step := range []participant.Step{validation, payment, stock} {
		c, err := platform.NewParticipantConsumer(step, table, b, logg, m)
		if err != nil {
			return err
		}
		consumers = append(consumers, c)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	ordersSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, outbox.NewService(outboxRepo, logg), logg)
	if err != nil {
		return err
	}
	relay, err := outbox.NewRelay(outbox.RelayParams{
		DB:           dbClient,
		Repository:   outboxRepo,
		Publisher:    b,
		Logger:       logg,
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
	})
	if err != nil {
		return err
	}
	notify, err := orders.NewNotifyConsumer(ordersSvc, b, logg, m)
	if err != nil {
		return err
	}
	consumers = append(consumers, notify, relay)

	deps := map[string]controllers.Pinger{"db": dbClient, "bus": b}
	addr := ":" + cfg.App.Port
	ctx = logg.WithField(ctx, "addr", addr)
	logg.Info(ctx, "starting saga-local")

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range consumers {
		g.Go(func() error {
			return c.Run(gctx)
		})
	}
	g.Go(func() error {
		return platform.Serve(gctx, addr, routes.NewRouter(cfg, logg, deps, ordersSvc), logg)
	})
	if cfg.App.MetricsAddr != "" {
		g.Go(func() error {
			return platform.Serve(gctx, cfg.App.MetricsAddr, routes.NewOpsRouter(cfg, logg, deps, reg), logg)
		})
	}
	return g.Wait()
}
