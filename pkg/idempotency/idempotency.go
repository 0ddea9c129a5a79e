// Package idempotency remembers which inbound messages a consumer already
// handled so that redeliveries can be skipped.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/order-saga/pkg/redis"
)

// Manager tracks processed message keys per consumer using Redis with a TTL.
// Keys follow the `saga:idempotency:msg:processed:<consumer>:<key>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds an idempotency guard that marks messages as processed for the given TTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{
		store: store,
		ttl:   ttl,
	}, nil
}

// IsProcessed reports whether the key was already marked for consumer.
func (m *Manager) IsProcessed(ctx context.Context, consumer, key string) (bool, error) {
	full, err := m.processedKey(consumer, key)
	if err != nil {
		return false, err
	}
	return m.store.Exists(ctx, full)
}

// MarkProcessed records the key. It reports false when another delivery
// marked it first.
func (m *Manager) MarkProcessed(ctx context.Context, consumer, key string) (bool, error) {
	full, err := m.processedKey(consumer, key)
	if err != nil {
		return false, err
	}
	return m.store.SetNX(ctx, full, "1", m.ttl)
}

// CheckAndMarkProcessed returns true if the key has already been processed and
// otherwise marks it as processed with the configured TTL.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, key string) (bool, error) {
	set, err := m.MarkProcessed(ctx, consumer, key)
	if err != nil {
		return false, err
	}
	return !set, nil
}

func (m *Manager) Delete(ctx context.Context, consumer, key string) error {
	full, err := m.processedKey(consumer, key)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, full)
}

func (m *Manager) processedKey(consumer, key string) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if key == "" {
		return "", errors.New("message key is required")
	}
	scope := fmt.Sprintf("msg:processed:%s", consumer)
	return m.store.IdempotencyKey(scope, key), nil
}
