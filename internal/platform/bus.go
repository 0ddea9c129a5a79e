// Package platform holds the process wiring shared by the saga binaries:
// bootstrap, bus selection and the ops HTTP server.
package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/order-saga/pkg/bus"
	"github.com/angelmondragon/order-saga/pkg/bus/kafka"
	"github.com/angelmondragon/order-saga/pkg/bus/memory"
	"github.com/angelmondragon/order-saga/pkg/config"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/pubsub"
)

// OpenBus connects the transport selected by cfg.Bus.Driver. service names
// the consumer group when none is configured.
func OpenBus(ctx context.Context, cfg *config.Config, service string, logg *logger.Logger) (bus.Transport, error) {
	group := cfg.Bus.Group(service)
	switch strings.ToLower(strings.TrimSpace(cfg.Bus.Driver)) {
	case config.BusDriverKafka:
		return kafka.New(cfg.Kafka, group, logg)
	case config.BusDriverPubSub:
		return pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, group, logg)
	case config.BusDriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported bus driver %q", cfg.Bus.Driver)
	}
}
