package idempotency

import (
	"context"
	"fmt"
	"time"
)

type exampleStore struct {
	keys map[string]bool
}

func (s *exampleStore) Exists(_ context.Context, key string) (bool, error) {
	return s.keys[key], nil
}

func (s *exampleStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *exampleStore) IdempotencyKey(scope, id string) string {
	return "saga:idempotency:" + scope + ":" + id
}

func (s *exampleStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func ExampleManager_CheckAndMarkProcessed() {
	ctx := context.Background()
	manager, _ := NewManager(&exampleStore{keys: map[string]bool{}}, 7*24*time.Hour)

	for i := 0; i < 2; i++ {
		already, _ := manager.CheckAndMarkProcessed(ctx, "orchestrator", "tx-1:orchestrator:PAYMENT:3")
		if already {
			fmt.Println("already processed")
			continue
		}
		fmt.Println("processing message")
	}
	// Output:
	// processing message
	// already processed
}
