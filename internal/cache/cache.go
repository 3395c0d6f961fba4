package cache

import (
	"context"
	"errors"
)

var ErrMiss = errors.New("cache miss")

// PresenceCache stores the last known status of each user. Entries expire
// and are advisory: the store remains authoritative.
type PresenceCache interface {
	SetStatus(ctx context.Context, userId int64, status string) error
	GetStatus(ctx context.Context, userId int64) (string, error)
	Ping(ctx context.Context) error
	Close() error
}
