package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"posync/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotRepository keeps snapshots in redis for fast reads on a
// shared terminal. It is never the only copy; durability stays with the
// sqlite store behind the failover composite.
type RedisSnapshotRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisSnapshotRepository(client *redis.Client, ttl time.Duration) *RedisSnapshotRepository {
	return &RedisSnapshotRepository{client: client, ttl: ttl}
}

func (r *RedisSnapshotRepository) key(resourceType string) string {
	return fmt.Sprintf("snapshot:%s", resourceType)
}

func (r *RedisSnapshotRepository) PutSnapshot(ctx context.Context, resourceType string, data json.RawMessage) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, r.key(resourceType), []byte(data), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot in redis: %w", err)
	}
	return nil
}

func (r *RedisSnapshotRepository) GetSnapshot(ctx context.Context, resourceType string) (json.RawMessage, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, r.key(resourceType)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}
	return json.RawMessage(val), nil
}

// Ping verifies the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Close closes the redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
