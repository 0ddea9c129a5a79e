package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/order-saga/pkg/bus"
)

func TestDrainDeliversInPublishOrder(t *testing.T) {
	b := New()
	ctx := context.Background()
	var got []string
	b.Register([]string{"a", "b"}, func(_ context.Context, msg bus.Message) error {
		got = append(got, msg.Topic+":"+string(msg.Data))
		if msg.Topic == "a" && string(msg.Data) == "1" {
			return b.Publish(ctx, bus.Message{Topic: "b", Data: []byte("3")})
		}
		return nil
	})

	require.NoError(t, b.Publish(ctx, bus.Message{Topic: "a", Data: []byte("1")}))
	require.NoError(t, b.Publish(ctx, bus.Message{Topic: "b", Data: []byte("2")}))
	require.NoError(t, b.Publish(ctx, bus.Message{Topic: "unheard", Data: []byte("x")}))
	require.NoError(t, b.Drain(ctx))

	assert.Equal(t, []string{"a:1", "b:2", "b:3"}, got)
	assert.Equal(t, 1, b.Pending(), "messages without a handler stay queued")
}

func TestDrainStopsOnHandlerError(t *testing.T) {
	b := New()
	ctx := context.Background()
	boom := errors.New("boom")
	calls := 0
	b.Register([]string{"a"}, func(context.Context, bus.Message) error {
		calls++
		return boom
	})
	require.NoError(t, b.Publish(ctx, bus.Message{Topic: "a"}))
	require.NoError(t, b.Publish(ctx, bus.Message{Topic: "a"}))

	err := b.Drain(ctx)
	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, bus.ErrHandler)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, b.Pending())
}

func TestSubscribeReturnsOnCancel(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	received := 0
	done := make(chan error, 1)
	go func() {
		done <- b.Subscribe(ctx, []string{"a"}, func(context.Context, bus.Message) error {
			mu.Lock()
			received++
			mu.Unlock()
			return nil
		})
	}()

	require.NoError(t, b.Publish(ctx, bus.Message{Topic: "a"}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
}

func TestFailPublishAndClose(t *testing.T) {
	b := New()
	ctx := context.Background()
	b.FailPublish("a", errors.New("down"))
	assert.Error(t, b.Publish(ctx, bus.Message{Topic: "a"}))
	b.FailPublish("a", nil)
	assert.NoError(t, b.Publish(ctx, bus.Message{Topic: "a"}))
	assert.Len(t, b.Published("a"), 1)

	require.NoError(t, b.Close())
	assert.Error(t, b.Ping(ctx))
	assert.Error(t, b.Publish(ctx, bus.Message{Topic: "a"}))
}
