package cache

import (
	"context"
	"time"

	"marketplace-gateway/internal/circuitbreaker"
	"marketplace-gateway/internal/common/logging"
)

// BreakerStore short-circuits calls to a failing Store.
type BreakerStore struct {
	next    Store
	breaker *circuitbreaker.Breaker
}

func NewBreakerStore(next Store, config circuitbreaker.Config, logger logging.Logger) *BreakerStore {
	return &BreakerStore{
		next:    next,
		breaker: circuitbreaker.New("cache_store", config, logger),
	}
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	var found bool
	err := b.breaker.Execute(func() error {
		var err error
		data, found, err = b.next.Get(ctx, key)
		return err
	})
	return data, found, err
}

func (b *BreakerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.breaker.Execute(func() error {
		return b.next.Set(ctx, key, value, ttl)
	})
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	return b.breaker.Execute(func() error {
		return b.next.Delete(ctx, key)
	})
}

func (b *BreakerStore) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	var deleted int
	err := b.breaker.Execute(func() error {
		var err error
		deleted, err = b.next.DeleteByPattern(ctx, pattern)
		return err
	})
	return deleted, err
}

func (b *BreakerStore) FlushAll(ctx context.Context) error {
	return b.breaker.Execute(func() error {
		return b.next.FlushAll(ctx)
	})
}

// State reports the circuit state for health output.
func (b *BreakerStore) State() string {
	return b.breaker.State()
}
