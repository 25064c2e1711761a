package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"posync/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisSnapshotRepository(t *testing.T) {
	_, client := setupTestRedis(t)
	repo := NewRedisSnapshotRepository(client, time.Hour)
	ctx := context.Background()

	t.Run("missing snapshot returns nil without error", func(t *testing.T) {
		data, err := repo.GetSnapshot(ctx, "products")
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("put and get roundtrip", func(t *testing.T) {
		require.NoError(t, repo.PutSnapshot(ctx, "products", json.RawMessage(`[{"id":1}]`)))

		data, err := repo.GetSnapshot(ctx, "products")
		require.NoError(t, err)
		assert.JSONEq(t, `[{"id":1}]`, string(data))
	})

	t.Run("snapshots are namespaced by type", func(t *testing.T) {
		require.NoError(t, repo.PutSnapshot(ctx, "pending-sales", json.RawMessage(`[]`)))

		data, err := repo.GetSnapshot(ctx, "products")
		require.NoError(t, err)
		assert.JSONEq(t, `[{"id":1}]`, string(data))
	})
}

func TestNewRedisClientAndPing(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := NewRedisClient(config.RedisConfig{Address: mr.Addr(), DB: 0, PoolSize: 2})
	defer Close(client)

	require.NoError(t, Ping(context.Background(), client))
}

func TestPingFailsWhenRedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	err := Ping(context.Background(), client)
	assert.Error(t, err)
}
