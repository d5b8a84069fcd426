package locks

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-gateway/internal/common/logging"
	"marketplace-gateway/internal/redis"
)

func setupLocker(t *testing.T) (*RedsyncLocker, *miniredis.Miniredis) {
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

	locker, err := NewRedsyncLocker(client, DefaultOptions())
	require.NoError(t, err)
	return locker, mr
}

func TestNewRedsyncLocker_RequiresClient(t *testing.T) {
	_, err := NewRedsyncLocker(nil, DefaultOptions())
	assert.Error(t, err)
}

func TestRedsyncLocker_WithLock(t *testing.T) {
	locker, mr := setupLocker(t)
	ctx := context.Background()

	t.Run("holds lease during fn and releases after", func(t *testing.T) {
		err := locker.WithLock(ctx, "rate_limit:general:1.2.3.4", func() error {
			assert.True(t, mr.Exists("lock:rate_limit:general:1.2.3.4"))
			return nil
		})
		require.NoError(t, err)
		assert.False(t, mr.Exists("lock:rate_limit:general:1.2.3.4"))
	})

	t.Run("returns fn error", func(t *testing.T) {
		boom := stderrors.New("boom")
		assert.Equal(t, boom, locker.WithLock(ctx, "k", func() error { return boom }))
	})

	t.Run("contended lease is not acquired", func(t *testing.T) {
		require.NoError(t, mr.Set("lock:busy", "someone-else"))
		mr.SetTTL("lock:busy", time.Minute)

		called := false
		err := locker.WithLock(ctx, "busy", func() error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, ErrNotAcquired)
		assert.False(t, called)
	})
}

func TestRedsyncLocker_SerializesSameKey(t *testing.T) {
	locker, _ := setupLocker(t)
	locker.opts.Tries = 200
	locker.opts.RetryDelay = 2 * time.Millisecond

	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "shared", func() error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
}

func TestRedsyncLocker_StoreNotReady(t *testing.T) {
	client, err := redis.NewClient(&redis.Config{URL: "redis://127.0.0.1:1/0"}, logging.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	locker, err := NewRedsyncLocker(client, DefaultOptions())
	require.NoError(t, err)

	err = locker.WithLock(context.Background(), "k", func() error { return nil })
	assert.ErrorIs(t, err, redis.ErrUnavailable)
}

func TestLocalLocker(t *testing.T) {
	locker := NewLocalLocker()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locker.WithLock(context.Background(), "k", func() error {
				v := counter
				time.Sleep(time.Microsecond)
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, locker.WithLock(ctx, "k", func() error { return nil }), context.Canceled)
}
