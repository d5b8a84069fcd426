package cache

import (
	"context"
	"path"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"marketplace-gateway/internal/common/errors"
)

// MemoryStore keeps entries in process memory. State is not shared between
// instances, so it only suits single-process deployments and development.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates a store that sweeps expired entries every
// cleanupInterval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, found := m.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, false, errors.SerializationError("unexpected value type in memory store", nil).WithContext("key", key)
	}
	return data, true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// Copy so later mutation of the caller's slice cannot change the entry.
	stored := make([]byte, len(value))
	copy(stored, value)
	m.cache.Set(key, stored, ttl)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// DeleteByPattern matches keys with path.Match, which supports the same
// *, ? and [class] wildcards as the redis SCAN MATCH option.
func (m *MemoryStore) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, errors.ValidationError("invalid key pattern").WithContext("pattern", pattern)
	}

	deleted := 0
	for key := range m.cache.Items() {
		if ok, _ := path.Match(pattern, key); ok {
			m.cache.Delete(key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStore) FlushAll(ctx context.Context) error {
	m.cache.Flush()
	return nil
}

// ItemCount returns the number of entries, including expired ones not yet
// swept.
func (m *MemoryStore) ItemCount() int {
	return m.cache.ItemCount()
}
