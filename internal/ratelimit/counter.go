// Package ratelimit implements the admission filters: a fixed-window counter
// stored in the shared cache, and HTTP middleware applying one policy each
// (general, auth, upload, API key, role).
//
// Every decision fails open. If the cache cannot be read or written the
// request is admitted and nothing is recorded.
package ratelimit

import (
	"context"
	"time"

	"github.com/samber/lo"

	"marketplace-gateway/internal/cache"
	"marketplace-gateway/internal/common/logging"
	"marketplace-gateway/internal/common/utils"
	"marketplace-gateway/internal/locks"
)

// Result is the outcome of one counter evaluation.
type Result struct {
	Allowed bool
	Limit   int
	// Remaining is limit minus the timestamps in the window after this call.
	Remaining int
	// Count is the number of timestamps in the window after this call.
	Count int
	// ResetAt is when the oldest timestamp in the window expires.
	ResetAt time.Time
	// RetryAfter is the wait until ResetAt, at least one second, for denials.
	RetryAfter time.Duration
	// Degraded is set when the cache could not be used and the decision is a
	// fail-open default.
	Degraded bool
}

// Counter keeps, per key, the millisecond timestamps of admitted events inside
// a trailing window as one cache entry. Reads prune lazily.
type Counter struct {
	cache    *cache.Facade
	locker   locks.Locker
	now      func() time.Time
	logger   logging.Logger
	degraded *logging.Sampled
}

type CounterOption func(*Counter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CounterOption {
	return func(c *Counter) { c.now = now }
}

// WithLocker serializes each read-modify-write behind a per-key lease. A
// lease that cannot be taken admits the request without recording it.
func WithLocker(l locks.Locker) CounterOption {
	return func(c *Counter) { c.locker = l }
}

func WithLogger(logger logging.Logger) CounterOption {
	return func(c *Counter) { c.logger = logger }
}

func NewCounter(facade *cache.Facade, opts ...CounterOption) *Counter {
	c := &Counter{
		cache:  facade,
		now:    time.Now,
		logger: logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithFields(logging.String("component", "ratelimit"))
	c.degraded = logging.NewSampled(c.logger, 10*time.Second)
	return c
}

type mode int

const (
	// modeHit checks capacity and records the event when admitted.
	modeHit mode = iota
	// modePeek checks capacity without recording.
	modePeek
	// modeRecord records unconditionally.
	modeRecord
)

// Hit evaluates key against (window, limit) and records the event if it is
// admitted.
func (c *Counter) Hit(ctx context.Context, key string, window time.Duration, limit int) Result {
	return c.run(ctx, key, window, limit, modeHit)
}

// Peek evaluates key without recording anything. It never takes the
// serialization lease.
func (c *Counter) Peek(ctx context.Context, key string, window time.Duration, limit int) Result {
	return c.run(ctx, key, window, limit, modePeek)
}

// Record appends an event for key regardless of capacity. It is used when
// consumption is decided after the fact, such as a failed login.
func (c *Counter) Record(ctx context.Context, key string, window time.Duration, limit int) Result {
	return c.run(ctx, key, window, limit, modeRecord)
}

func (c *Counter) run(ctx context.Context, key string, window time.Duration, limit int, m mode) Result {
	if c.locker == nil || m == modePeek {
		return c.evaluate(ctx, key, window, limit, m)
	}

	var res Result
	err := c.locker.WithLock(ctx, key, func() error {
		res = c.evaluate(ctx, key, window, limit, m)
		return nil
	})
	if err != nil {
		c.degraded.Warn("Counter lease unavailable, admitting without recording",
			logging.String("key", key),
			logging.Err(err))
		return c.failOpen(window, limit)
	}
	return res
}

func (c *Counter) evaluate(ctx context.Context, key string, window time.Duration, limit int, m mode) Result {
	now := c.now()
	nowMs := now.UnixMilli()
	cutoff := nowMs - window.Milliseconds()

	var stamps []int64
	if !c.cache.Get(ctx, key, &stamps) {
		stamps = nil
	}

	pruned := lo.Filter(stamps, func(ts int64, _ int) bool {
		return ts > cutoff
	})

	res := Result{Limit: limit}

	if m != modeRecord && len(pruned) >= limit {
		res.Allowed = false
		res.Count = len(pruned)
		res.ResetAt = time.UnixMilli(lo.Min(pruned) + window.Milliseconds())
		res.RetryAfter = utils.CeilSeconds(res.ResetAt.Sub(now))
		return res
	}

	res.Allowed = true
	if m == modePeek {
		res.Count = len(pruned)
		res.Remaining = limit - len(pruned)
		res.ResetAt = resetAt(pruned, now, window)
		return res
	}

	pruned = append(pruned, nowMs)
	if !c.cache.Set(ctx, key, pruned, utils.CeilSeconds(window)) {
		c.degraded.Warn("Counter not recorded, cache unavailable", logging.String("key", key))
		return c.failOpen(window, limit)
	}

	res.Count = len(pruned)
	res.Remaining = max(limit-len(pruned), 0)
	res.ResetAt = resetAt(pruned, now, window)
	return res
}

func (c *Counter) failOpen(window time.Duration, limit int) Result {
	now := c.now()
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   now.Add(window),
		Degraded:  true,
	}
}

func resetAt(stamps []int64, now time.Time, window time.Duration) time.Time {
	if len(stamps) == 0 {
		return now.Add(window)
	}
	return time.UnixMilli(lo.Min(stamps) + window.Milliseconds())
}
