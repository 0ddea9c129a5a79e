package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/order-saga/internal/participant"
	"github.com/angelmondragon/order-saga/internal/payments"
	"github.com/angelmondragon/order-saga/internal/platform"
	"github.com/angelmondragon/order-saga/pkg/config"
	"github.com/angelmondragon/order-saga/pkg/db"
)

const serviceName = "payment"

func main() {
	cfg, logg, err := platform.Load(serviceName)
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logg.WithField(ctx, "payment_min_amount", cfg.Saga.PaymentMinAmount)
	logg.Info(ctx, "starting payment service")
	err = platform.RunParticipant(ctx, cfg, logg, serviceName, func(cfg *config.Config, client *db.Client) (participant.Step, error) {
		return payments.NewService(
			payments.NewRepository(client.DB()),
			client,
			decimal.NewFromFloat(cfg.Saga.PaymentMinAmount),
		)
	})
	if err != nil {
		logg.Error(ctx, "payment service stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "payment service shut down gracefully")
}
