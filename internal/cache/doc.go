// Package cache provides the fail-soft cache facade used by the admission
// layer.
//
// A Store is the raw backend. Two implementations exist:
//
//   - internal/redis.Client for the shared network store (production)
//   - MemoryStore, a github.com/patrickmn/go-cache map for single-process use
//
// BreakerStore decorates any Store with a gobreaker circuit so that a failing
// backend is short-circuited instead of timing out on every request.
//
// Facade is what callers use. It JSON-encodes values and never returns an
// error: reads resolve to "absent" and writes to false on any fault, so
// callers must treat a miss as "cache unavailable" rather than "empty".
//
// Usage:
//
//	store := cache.NewBreakerStore(redisClient, circuitbreaker.DefaultConfig(), logger)
//	c := cache.New(store, logger)
//
//	var stamps []int64
//	if c.Get(ctx, "rate_limit:general:10.0.0.1", &stamps) { ... }
//	c.Set(ctx, "rate_limit:general:10.0.0.1", stamps, 15*time.Minute)
package cache
