// Package memory is an in-process bus used by tests and the single-process
// local runner.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/angelmondragon/order-saga/pkg/bus"
)

// Bus queues published messages per topic and hands them to the handler
// registered for that topic. Messages on topics nobody listens to stay
// queued until a handler registers.
type Bus struct {
	mu        sync.Mutex
	queue     []bus.Message
	handlers  map[string]bus.Handler
	published map[string][]bus.Message
	failures  map[string]error
	wake      chan struct{}
	closed    bool
}

var errClosed = errors.New("memory bus closed")

func New() *Bus {
	return &Bus{
		handlers:  map[string]bus.Handler{},
		published: map[string][]bus.Message{},
		failures:  map[string]error{},
		wake:      make(chan struct{}),
	}
}

// Publish enqueues msg.
func (b *Bus) Publish(_ context.Context, msg bus.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	if err := b.failures[msg.Topic]; err != nil {
		return err
	}
	msg.Data = append([]byte(nil), msg.Data...)
	b.queue = append(b.queue, msg)
	b.published[msg.Topic] = append(b.published[msg.Topic], msg)
	close(b.wake)
	b.wake = make(chan struct{})
	return nil
}

// Register binds h to topics without blocking. Messages are then delivered
// by Drain.
func (b *Bus) Register(topics []string, h bus.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		b.handlers[topic] = h
	}
}

// Subscribe registers h and delivers its topics until ctx ends or h fails.
func (b *Bus) Subscribe(ctx context.Context, topics []string, h bus.Handler) error {
	b.Register(topics, h)
	own := make(map[string]bool, len(topics))
	for _, topic := range topics {
		own[topic] = true
	}
	for {
		msg, ok, wake := b.next(own)
		if ok {
			if err := h(ctx, msg); err != nil {
				return bus.HandlerError(msg.Topic, err)
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-wake:
		}
	}
}

// Drain synchronously delivers queued messages in publish order until no
// message with a registered handler remains. It stops at the first handler
// error, leaving the failed message dropped as an unacknowledged delivery.
func (b *Bus) Drain(ctx context.Context) error {
	for {
		msg, h, ok := b.nextAny()
		if !ok {
			return nil
		}
		if err := h(ctx, msg); err != nil {
			return bus.HandlerError(msg.Topic, err)
		}
	}
}

// Redeliver enqueues msg again, the way a broker does after a crash.
func (b *Bus) Redeliver(msg bus.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, msg)
}

// Published returns every message accepted for topic, drained or not.
func (b *Bus) Published(topic string) []bus.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bus.Message(nil), b.published[topic]...)
}

// Pending returns the number of queued messages.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// FailPublish makes every publish on topic fail with err. A nil err clears it.
func (b *Bus) FailPublish(topic string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, topic)
		return
	}
	b.failures[topic] = err
}

func (b *Bus) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	return nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Bus) next(own map[string]bool) (bus.Message, bool, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, msg := range b.queue {
		if own[msg.Topic] {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			return msg, true, nil
		}
	}
	return bus.Message{}, false, b.wake
}

func (b *Bus) nextAny() (bus.Message, bus.Handler, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, msg := range b.queue {
		if h, ok := b.handlers[msg.Topic]; ok {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			return msg, h, true
		}
	}
	return bus.Message{}, nil, false
}
