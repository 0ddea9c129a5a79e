package participant

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/order-saga/pkg/bus"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/metrics"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

// Consumer feeds the forward and rollback topics of one participant into its
// Runner. Any error it returns is fatal for the subscription.
type Consumer struct {
	runner     *Runner
	route      saga.Participant
	subscriber bus.Subscriber
	logg       *logger.Logger
	metrics    *metrics.SagaMetrics
}

// NewConsumer builds a consumer for the runner's participant as declared in table.
func NewConsumer(runner *Runner, table *saga.Table, subscriber bus.Subscriber, logg *logger.Logger, m *metrics.SagaMetrics) (*Consumer, error) {
	if runner == nil {
		return nil, fmt.Errorf("participant runner required")
	}
	if table == nil {
		return nil, fmt.Errorf("transition table required")
	}
	if subscriber == nil {
		return nil, fmt.Errorf("subscriber required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	route, ok := table.Participant(runner.Source())
	if !ok {
		return nil, fmt.Errorf("%s is not part of the saga chain", runner.Source())
	}
	return &Consumer{
		runner:     runner,
		route:      route,
		subscriber: subscriber,
		logg:       logg,
		metrics:    m,
	}, nil
}

// Topics returns the topics the consumer listens on.
func (c *Consumer) Topics() []string {
	return bus.Topics(c.route.ForwardTopic, c.route.RollbackTopic)
}

// Run blocks until ctx is cancelled or a message fails.
func (c *Consumer) Run(ctx context.Context) error {
	c.logg.Info(ctx, fmt.Sprintf("%s consumer listening on %v", c.route.Source, c.Topics()))
	return c.subscriber.Subscribe(ctx, c.Topics(), c.Handle)
}

// Handle processes one delivery.
func (c *Consumer) Handle(ctx context.Context, msg bus.Message) (err error) {
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
	ctx = c.logg.WithSaga(ctx, event.OrderID, event.TransactionID)

	switch saga.Topic(msg.Topic) {
	case c.route.ForwardTopic:
		return c.runner.Forward(ctx, event)
	case c.route.RollbackTopic:
		return c.runner.Rollback(ctx, event)
	default:
		return fmt.Errorf("%s consumer received unexpected topic %q", c.route.Source, msg.Topic)
	}
}
