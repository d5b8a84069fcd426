package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"marketplace-gateway/internal/cache"
	"marketplace-gateway/internal/common/errors"
	"marketplace-gateway/internal/common/logging"
	"marketplace-gateway/internal/redis"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// downStore fails every operation the way an unreachable store does.
type downStore struct{}

var errDown = errors.ConnectionError("connection refused", nil)

func (downStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errDown }
func (downStore) Set(context.Context, string, []byte, time.Duration) error { return errDown }
func (downStore) Delete(context.Context, string) error { return errDown }
func (downStore) DeleteByPattern(context.Context, string) (int, error) { return 0, errDown }
func (downStore) FlushAll(context.Context) error { return errDown }

func startRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redis.NewClient(&redis.Config{
		URL:            fmt.Sprintf("redis://%s/0", mr.Addr()),
		OpTimeout:      200 * time.Millisecond,
		MaxRetries:     2,
		RetryInitial:   time.Millisecond,
		RetryMax:       5 * time.Millisecond,
		HealthInterval: time.Hour,
	}, logging.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = client.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		client.Close()
	})

	require.Eventually(t, client.Ready, time.Second, 5*time.Millisecond)
	return client, mr
}

func newTestCounter(t *testing.T, clock *fakeClock, opts ...CounterOption) (*Counter, *miniredis.Miniredis) {
	t.Helper()
	client, mr := startRedis(t)
	opts = append([]CounterOption{WithClock(clock.Now), WithLogger(logging.NewNopLogger())}, opts...)
	return NewCounter(cache.New(client, logging.NewNopLogger()), opts...), mr
}
