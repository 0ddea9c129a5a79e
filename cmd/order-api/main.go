package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/order-saga/api/controllers"
	"github.com/angelmondragon/order-saga/api/routes"
	"github.com/angelmondragon/order-saga/internal/orders"
	"github.com/angelmondragon/order-saga/internal/platform"
	"github.com/angelmondragon/order-saga/pkg/config"
	"github.com/angelmondragon/order-saga/pkg/db"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/migrate"
	"github.com/angelmondragon/order-saga/pkg/outbox"
)

const serviceName = "order-api"

func main() {
	cfg, logg, err := platform.Load(serviceName)
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "order api stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "order api shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
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

	transport, err := platform.OpenBus(ctx, cfg, serviceName, logg)
	if err != nil {
		return fmt.Errorf("bootstrapping bus: %w", err)
	}
	defer func() {
		err = multierr.Append(err, transport.Close())
	}()

	outboxRepo := outbox.NewRepository(dbClient.DB())
	svc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, outbox.NewService(outboxRepo, logg), logg)
	if err != nil {
		return err
	}
	relay, err := outbox.NewRelay(outbox.RelayParams{
		DB:           dbClient,
		Repository:   outboxRepo,
		Publisher:    transport,
		Logger:       logg,
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
	})
	if err != nil {
		return err
	}
	reg, m := platform.NewRegistry()
	notify, err := orders.NewNotifyConsumer(svc, transport, logg, m)
	if err != nil {
		return err
	}

	deps := map[string]controllers.Pinger{"db": dbClient, "bus": transport}
	addr := ":" + cfg.App.Port
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr})
	logg.Info(ctx, "starting order api")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return platform.Serve(gctx, addr, routes.NewRouter(cfg, logg, deps, svc), logg)
	})
	g.Go(func() error {
		return platform.RunWithOps(gctx, cfg, logg, notify, deps, reg)
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	return g.Wait()
}
