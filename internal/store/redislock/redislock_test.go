package redislock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/store/redislock"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestLockerSerializesPerRepo(t *testing.T) {
	client := newTestClient(t)
	locker := redislock.New(client)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "batch:acme/x")
	require.NoError(t, err)

	ctx2, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx2, "batch:acme/x")
	require.Error(t, err, "a second acquire of the same repo lock must block until released")

	unlock()

	unlock2, err := locker.Lock(ctx, "batch:acme/x")
	require.NoError(t, err)
	unlock2()
}

func TestModelConfigCacheRefreshAndSnapshot(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, client.HSet(ctx, "cascade:model_config:acme/x", "coder.m.low.base", "small").Err())

	cache := redislock.NewModelConfigCache(client, "acme/x")
	require.Empty(t, cache.Snapshot())

	require.NoError(t, cache.Refresh(ctx))
	snap := cache.Snapshot()
	require.Equal(t, "small", snap["coder.m.low.base"])
}
