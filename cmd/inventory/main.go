package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/angelmondragon/order-saga/internal/inventory"
	"github.com/angelmondragon/order-saga/internal/participant"
	"github.com/angelmondragon/order-saga/internal/platform"
	"github.com/angelmondragon/order-saga/pkg/config"
	"github.com/angelmondragon/order-saga/pkg/db"
)

const serviceName = "inventory"

func main() {
	cfg, logg, err := platform.Load(serviceName)
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg.Info(ctx, "starting inventory service")
	err = platform.RunParticipant(ctx, cfg, logg, serviceName, func(_ *config.Config, client *db.Client) (participant.Step, error) {
		return inventory.NewService(inventory.NewRepository(client.DB()), client)
	})
	if err != nil {
		logg.Error(ctx, "inventory service stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "inventory service shut down gracefully")
}
