package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/order-saga/pkg/bus"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/metrics"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

// NotifyConsumer records the events the orchestrator publishes on
// notify-ending.
type NotifyConsumer struct {
	svc        Service
	subscriber bus.Subscriber
	logg       *logger.Logger
	metrics    *metrics.SagaMetrics
}

func NewNotifyConsumer(svc Service, subscriber bus.Subscriber, logg *logger.Logger, m *metrics.SagaMetrics) (*NotifyConsumer, error) {
	if svc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if subscriber == nil {
		return nil, fmt.Errorf("subscriber required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &NotifyConsumer{svc: svc, subscriber: subscriber, logg: logg, metrics: m}, nil
}

// Run blocks until ctx is cancelled or a message fails.
func (c *NotifyConsumer) Run(ctx context.Context) error {
	return c.subscriber.Subscribe(ctx, bus.Topics(saga.TopicNotifyEnding), c.Handle)
}

func (c *NotifyConsumer) Handle(ctx context.Context, msg bus.Message) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveMessage(msg.Topic, time.Since(start), err)
	}()

	ctx = c.logg.WithTopic(ctx, msg.Topic)
	event, err := saga.Decode(msg.Data)
	if err != nil {
		c.metrics.IncMalformed(msg.Topic)
		c.logg.Error(ctx, "malformed event, stopping consumer", err)
		return err
	}
	return c.svc.NotifyEnding(ctx, event)
}
