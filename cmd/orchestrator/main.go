package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"

	"github.com/angelmondragon/order-saga/api/controllers"
	"github.com/angelmondragon/order-saga/internal/orchestrator"
	"github.com/angelmondragon/order-saga/internal/platform"
	"github.com/angelmondragon/order-saga/pkg/config"
	"github.com/angelmondragon/order-saga/pkg/idempotency"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/redis"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

const serviceName = "orchestrator"

func main() {
	cfg, logg, err := platform.Load(serviceName)
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg.Info(ctx, "starting orchestrator")
	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "orchestrator stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "orchestrator shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	transport, err := platform.OpenBus(ctx, cfg, serviceName, logg)
	if err != nil {
		return fmt.Errorf("bootstrapping bus: %w", err)
	}
	defer func() {
		err = multierr.Append(err, transport.Close())
	}()

	deps := map[string]controllers.Pinger{"bus": transport}

	var dedupe *idempotency.Manager
	if cfg.Redis.Enabled() {
		redisClient, redisErr := redis.New(ctx, cfg.Redis, logg)
		if redisErr != nil {
			return fmt.Errorf("bootstrapping redis: %w", redisErr)
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
		if dedupe, err = idempotency.NewManager(redisClient, cfg.Saga.DedupeTTL); err != nil {
			return err
		}
		deps["redis"] = redisClient
	} else {
		logg.Warn(ctx, "redis not configured, redelivered hops will not be deduplicated")
	}

	reg, m := platform.NewRegistry()
	svc, err := orchestrator.NewService(saga.DefaultTable(), transport, logg, orchestrator.WithMetrics(m))
	if err != nil {
		return err
	}
	consumer, err := orchestrator.NewConsumer(svc, transport, dedupe, logg, m)
	if err != nil {
		return err
	}
	return platform.RunWithOps(ctx, cfg, logg, consumer, deps, reg)
}
