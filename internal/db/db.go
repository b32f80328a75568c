// Package db defines the key-value storage contract for the ranked-result
// cache.
package db

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound signals a cache miss.
var ErrKeyNotFound = errors.New("key not found")

// Store is the key-value facade the result cache consumes.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close()
}
