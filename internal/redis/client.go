// Package redis is the cache store client: one long-lived go-redis connection
// pool per process, watched by a supervisor that reconnects with bounded
// backoff and gives up after a retry ceiling.
package redis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	apperrors "marketplace-gateway/internal/common/errors"
	"marketplace-gateway/internal/common/logging"
	"marketplace-gateway/internal/common/utils"
)

// State is the supervisor's view of the connection.
type State int32

const (
	StateConnecting State = iota
	StateReady
	StateReconnecting
	// StateDegraded is terminal: the retry ceiling was reached and the
	// process runs without a cache until it is restarted.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// ErrUnavailable is returned by every operation while the client is not ready.
var ErrUnavailable = apperrors.ConnectionError("cache store unavailable", nil)

// scanBatch is the COUNT hint used when enumerating keys for pattern deletes.
const scanBatch = 100

type Config struct {
	URL            string
	PoolSize       int
	OpTimeout      time.Duration
	MaxRetries     int
	RetryInitial   time.Duration
	RetryMax       time.Duration
	HealthInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.URL == "" {
		c.URL = "redis://localhost:6379/0"
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.OpTimeout == 0 {
		c.OpTimeout = 2 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 10
	}
	if c.RetryInitial == 0 {
		c.RetryInitial = 500 * time.Millisecond
	}
	if c.RetryMax == 0 {
		c.RetryMax = 30 * time.Second
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = 5 * time.Second
	}
}

type Client struct {
	rdb    *redis.Client
	config *Config
	state  atomic.Int32
	logger logging.Logger
}

// NewClient parses the store URL and builds the connection pool. It does not
// dial; Run establishes the connection and keeps it healthy.
func NewClient(config *Config, logger logging.Logger) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	config.setDefaults()

	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, apperrors.ConfigError("invalid REDIS_URL").WithContext("error", err.Error())
	}
	opts.PoolSize = config.PoolSize
	opts.DialTimeout = config.OpTimeout
	opts.ReadTimeout = config.OpTimeout
	opts.WriteTimeout = config.OpTimeout
	opts.PoolTimeout = config.OpTimeout
	// Reconnects are the supervisor's job; a failing command should fail now.
	opts.MaxRetries = -1

	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	c := &Client{
		rdb:    redis.NewClient(opts),
		config: config,
		logger: logger.WithFields(logging.String("component", "cache_store")),
	}
	c.state.Store(int32(StateConnecting))
	return c, nil
}

// Universal exposes the underlying client for libraries that need it
// directly (redsync pools).
func (c *Client) Universal() redis.UniversalClient {
	return c.rdb
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	if old := State(c.state.Swap(int32(s))); old != s {
		c.logger.Info("Cache store state changed",
			logging.String("from", old.String()),
			logging.String("to", s.String()))
	}
}

// Ready reports whether operations are currently sent to the store.
func (c *Client) Ready() bool {
	return c.State() == StateReady
}

// Run connects and then supervises the connection until ctx is done or the
// retry ceiling is exhausted. Exhaustion is not an error for the process: the
// client stays degraded and every operation returns ErrUnavailable.
func (c *Client) Run(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return nil
	}

	ticker := time.NewTicker(c.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := c.ping(ctx)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("Cache store health check failed, reconnecting", logging.Err(err))

			c.setState(StateReconnecting)
			if err := c.connect(ctx); err != nil {
				return nil
			}
		}
	}
}

// Connect performs the bounded initial connection without starting the
// supervisor. Short-lived callers such as the admin CLI use it instead of Run.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return apperrors.ConnectionError("cache store unreachable", err)
	}
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	retry := utils.RetryConfig{
		MaxAttempts:   c.config.MaxRetries,
		InitialDelay:  c.config.RetryInitial,
		MaxDelay:      c.config.RetryMax,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			c.logger.Warn("Cache store connection attempt failed",
				logging.Int("attempt", attempt),
				logging.Int("max_attempts", c.config.MaxRetries),
				logging.Duration("next_retry_in", delay),
				logging.Err(err))
		},
	}

	err := utils.RetryWithBackoff(ctx, retry, func() error { return c.ping(ctx) })
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		c.setState(StateDegraded)
		c.logger.Error("Cache store retry ceiling reached, continuing without cache until restart", err,
			logging.Int("attempts", c.config.MaxRetries))
		return err
	}

	c.setState(StateReady)
	return nil
}

func (c *Client) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Health pings the store regardless of the supervisor state.
func (c *Client) Health(ctx context.Context) error {
	if err := c.ping(ctx); err != nil {
		return apperrors.ConnectionError("cache store ping failed", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// begin gates an operation on the supervisor state and applies the
// per-operation timeout.
func (c *Client) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if !c.Ready() {
		return nil, nil, ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	return ctx, cancel, nil
}

// Get returns the raw payload stored at key; found is false when the key does
// not exist.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer cancel()

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.ConnectionError("get failed", err).WithContext("key", key)
	}
	return data, true, nil
}

// Set stores value at key with the given expiry (SET key value EX ttl).
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return apperrors.ConnectionError("set failed", err).WithContext("key", key)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return apperrors.ConnectionError("delete failed", err).WithContext("key", key)
	}
	return nil
}

// DeleteByPattern enumerates keys matching a glob pattern with SCAN and
// removes them in batches. It returns the number of keys deleted.
func (c *Client) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	deleted := 0
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		deleted += int(n)
		batch = batch[:0]
		return nil
	}

	iter := c.rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return deleted, apperrors.ConnectionError("delete by pattern failed", err).WithContext("pattern", pattern)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, apperrors.ConnectionError("scan failed", err).WithContext("pattern", pattern)
	}
	if err := flush(); err != nil {
		return deleted, apperrors.ConnectionError("delete by pattern failed", err).WithContext("pattern", pattern)
	}
	return deleted, nil
}

// FlushAll removes every key in the selected database.
func (c *Client) FlushAll(ctx context.Context) error {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := c.rdb.FlushDB(ctx).Err(); err != nil {
		return apperrors.ConnectionError("flush failed", err)
	}
	return nil
}
