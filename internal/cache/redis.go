package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisPresenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ PresenceCache = (*RedisPresenceCache)(nil)

func NewRedisPresenceCache(url string, ttl time.Duration) (*RedisPresenceCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return &RedisPresenceCache{client: redis.NewClient(opts), ttl: ttl}, nil
}

func statusKey(userId int64) string {
	return fmt.Sprintf("user:%d:status", userId)
}

func (c *RedisPresenceCache) SetStatus(ctx context.Context, userId int64, status string) error {
	return c.client.Set(ctx, statusKey(userId), status, c.ttl).Err()
}

func (c *RedisPresenceCache) GetStatus(ctx context.Context, userId int64) (string, error) {
	status, err := c.client.Get(ctx, statusKey(userId)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return status, err
}

func (c *RedisPresenceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisPresenceCache) Close() error {
	return c.client.Close()
}
