package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/order-saga/pkg/bus"
	"github.com/angelmondragon/order-saga/pkg/idempotency"
	"github.com/angelmondragon/order-saga/pkg/logger"
	"github.com/angelmondragon/order-saga/pkg/metrics"
	"github.com/angelmondragon/order-saga/pkg/saga"
)

const consumerName = "orchestrator"

// Topics the orchestrator listens on.
var Topics = []saga.Topic{
	saga.TopicStartSaga,
	saga.TopicOrchestrator,
	saga.TopicFinishSuccess,
	saga.TopicFinishFail,
}

// Consumer dispatches inbound events to the Service. When a dedupe manager
// is configured, a hop that was already handled is skipped.
type Consumer struct {
	svc        *Service
	subscriber bus.Subscriber
	dedupe     *idempotency.Manager
	logg       *logger.Logger
	metrics    *metrics.SagaMetrics
}

// NewConsumer builds the orchestrator consumer. dedupe may be nil.
func NewConsumer(svc *Service, subscriber bus.Subscriber, dedupe *idempotency.Manager, logg *logger.Logger, m *metrics.SagaMetrics) (*Consumer, error) {
	if svc == nil {
		return nil, fmt.Errorf("orchestrator service required")
	}
	if subscriber == nil {
		return nil, fmt.Errorf("subscriber required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		svc:        svc,
		subscriber: subscriber,
		dedupe:     dedupe,
		logg:       logg,
		metrics:    m,
	}, nil
}

// Run blocks until ctx is cancelled or a message fails.
func (c *Consumer) Run(ctx context.Context) error {
	topics := bus.Topics(Topics...)
	c.logg.Info(ctx, fmt.Sprintf("orchestrator listening on %v", topics))
	return c.subscriber.Subscribe(ctx, topics, c.Handle)
}

// HopKey identifies one hop of a saga. Every hop appends history, so the
// history length tells hops of the same transaction apart. The status is left
// out: a step reports one outcome per hop, and a later outcome for the same
// hop (a redelivered trigger hitting the duplicate guard) must be dropped.
func HopKey(topic string, event saga.Event) string {
	return fmt.Sprintf("%s:%s:%s:%d", event.TransactionID, topic, event.Source, len(event.History))
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

	key := HopKey(msg.Topic, event)
	if c.dedupe != nil {
		seen, err := c.dedupe.IsProcessed(ctx, consumerName, key)
		if err != nil {
			return fmt.Errorf("checking hop %s: %w", key, err)
		}
		if seen {
			c.metrics.IncDuplicate(msg.Topic)
			c.logg.Warn(c.logg.WithField(ctx, "hop", key), "skipping redelivered hop")
			return nil
		}
	}

	if err := c.dispatch(ctx, saga.Topic(msg.Topic), event); err != nil {
		c.logg.Error(ctx, "orchestrator failed to handle event", err)
		return err
	}

	if c.dedupe != nil {
		if _, err := c.dedupe.MarkProcessed(ctx, consumerName, key); err != nil {
			return fmt.Errorf("marking hop %s: %w", key, err)
		}
	}
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, topic saga.Topic, event saga.Event) error {
	switch topic {
	case saga.TopicStartSaga:
		return c.svc.StartSaga(ctx, event)
	case saga.TopicOrchestrator:
		return c.svc.ContinueSaga(ctx, event)
	case saga.TopicFinishSuccess:
		return c.svc.FinishSagaSuccess(ctx, event)
	case saga.TopicFinishFail:
		return c.svc.FinishSagaFail(ctx, event)
	default:
		return fmt.Errorf("orchestrator received unexpected topic %q", topic)
	}
}
