package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LocalPresenceCache is the in-process fallback used when no redis URL is
// configured.
type LocalPresenceCache struct {
	entries *expirable.LRU[int64, string]
}

var _ PresenceCache = (*LocalPresenceCache)(nil)

func NewLocalPresenceCache(size int, ttl time.Duration) *LocalPresenceCache {
	return &LocalPresenceCache{entries: expirable.NewLRU[int64, string](size, nil, ttl)}
}

func (c *LocalPresenceCache) SetStatus(_ context.Context, userId int64, status string) error {
	c.entries.Add(userId, status)
	return nil
}

func (c *LocalPresenceCache) GetStatus(_ context.Context, userId int64) (string, error) {
	status, ok := c.entries.Get(userId)
	if !ok {
		return "", ErrMiss
	}
	return status, nil
}

func (c *LocalPresenceCache) Ping(context.Context) error { return nil }

func (c *LocalPresenceCache) Close() error {
	c.entries.Purge()
	return nil
}
