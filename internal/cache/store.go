package cache

import (
	"context"
	"time"
)

// Store is a key-value backend with per-key expiry and glob deletion.
type Store interface {
	// Get returns the payload at key; found is false for a missing key.
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeleteByPattern removes every key matching a glob pattern and returns
	// how many were removed.
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
	FlushAll(ctx context.Context) error
}
