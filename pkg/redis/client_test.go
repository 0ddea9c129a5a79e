package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/order-saga/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), config.RedisConfig{Address: mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestSetNXOnlyOnce(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	key := client.IdempotencyKey("orchestrator", "tx-1")

	ok, err := client.SetNX(ctx, key, "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, key, "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = client.SetNX(ctx, key, "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "key should be claimable again after ttl")
}

func TestSetGetDel(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "saga:k", "v", 0))
	got, err := client.Get(ctx, "saga:k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	exists, err := client.Exists(ctx, "saga:k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, client.Del(ctx, "saga:k"))
	exists, err = client.Exists(ctx, "saga:k")
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = client.Get(ctx, "saga:k")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), config.RedisConfig{Address: addr, DialTimeout: 100 * time.Millisecond}, nil)
	assert.Error(t, err)
}

func TestOptionsRequireEndpoint(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 7})
	require.NoError(t, err)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "saga:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "saga:idempotency:scope", client.IdempotencyKey("scope", ""))
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	assert.Error(t, client.Ping(context.Background()))
	assert.NoError(t, client.Close())
}
