// Package bus is the narrow publish/subscribe surface the saga services talk
// through. Delivery is at-least-once: a message is acknowledged only after its
// handler returned nil, and a handler error stops the subscription.
package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/order-saga/pkg/saga"
)

// Message is one record on a topic. Key carries the order id so that every
// hop of one saga lands on the same partition.
type Message struct {
	Topic string
	Key   string
	Data  []byte
}

// Handler processes one message. Returning an error is fatal for the
// subscription: the message is not acknowledged and Subscribe returns.
type Handler func(ctx context.Context, msg Message) error

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type Subscriber interface {
	// Subscribe delivers messages from topics to h until ctx is cancelled
	// (returning nil) or h fails (returning its error).
	Subscribe(ctx context.Context, topics []string, h Handler) error
}

// Transport is a connected bus driver.
type Transport interface {
	Publisher
	Subscriber
	Ping(ctx context.Context) error
	Close() error
}

// ErrHandler wraps the error a handler returned so callers can tell it apart
// from transport failures.
var ErrHandler = errors.New("message handler failed")

// HandlerError annotates err with the topic that failed.
func HandlerError(topic string, err error) error {
	return fmt.Errorf("%w on %s: %w", ErrHandler, topic, err)
}

// PublishEvent encodes event and publishes it on topic keyed by its order id.
func PublishEvent(ctx context.Context, p Publisher, topic saga.Topic, event saga.Event) error {
	data, err := saga.Encode(event)
	if err != nil {
		return fmt.Errorf("encoding event for %s: %w", topic, err)
	}
	if err := p.Publish(ctx, Message{Topic: topic.String(), Key: event.OrderID, Data: data}); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Topics converts saga topics to their wire names.
func Topics(topics ...saga.Topic) []string {
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		names = append(names, t.String())
	}
	return names
}
