package app

import (
	"context"
	"fmt"
	"time"

	"marketplace-gateway/internal/auth"
	"marketplace-gateway/internal/bruteforce"
	"marketplace-gateway/internal/cache"
	"marketplace-gateway/internal/circuitbreaker"
	"marketplace-gateway/internal/common/logging"
	"marketplace-gateway/internal/common/validation"
	"marketplace-gateway/internal/config"
	"marketplace-gateway/internal/locks"
	"marketplace-gateway/internal/ratelimit"
	"marketplace-gateway/internal/redis"
)

// memoryCleanupInterval is how often the in-process store evicts expired keys.
const memoryCleanupInterval = time.Minute

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	RedisClient *redis.Client
	Breaker     *cache.BreakerStore
	Cache       *cache.Facade
	Counter     *ratelimit.Counter
	Limiter     *ratelimit.Limiter
	Guard       *bruteforce.Guard
	Auth        *auth.Auth
	Credentials auth.CredentialChecker
	Validator   *validation.Validator
	Logger      logging.Logger
}

// New builds every component from a validated configuration. It does not
// touch the network; RedisClient.Run connects in the background.
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
	}

	if err := app.initializeCache(); err != nil {
		return nil, err
	}
	if err := app.initializeAdmission(); err != nil {
		return nil, err
	}
	app.initializeAuth()

	return app, nil
}

func (app *App) initializeCache() error {
	var store cache.Store

	switch app.Config.CacheBackend {
	case "memory":
		store = cache.NewMemoryStore(memoryCleanupInterval)
		app.Logger.Info("Cache store: in-process memory")
	default:
		settings, err := app.Config.Redis()
		if err != nil {
			return err
		}
		client, err := redis.NewClient(&redis.Config{
			URL:            settings.URL,
			PoolSize:       settings.PoolSize,
			OpTimeout:      settings.OpTimeout,
			MaxRetries:     settings.MaxRetries,
			RetryInitial:   settings.RetryInitial,
			RetryMax:       settings.RetryMax,
			HealthInterval: settings.HealthInterval,
		}, app.Logger)
		if err != nil {
			return fmt.Errorf("failed to create cache store client: %w", err)
		}
		app.RedisClient = client
		store = client
		app.Logger.Info("Cache store: redis", logging.Int("pool_size", settings.PoolSize))
	}

	if app.Config.CacheBreakerEnabled {
		app.Breaker = cache.NewBreakerStore(store, circuitbreaker.DefaultConfig(), app.Logger)
		store = app.Breaker
	}

	app.Cache = cache.New(store, app.Logger)
	return nil
}

func (app *App) initializeAdmission() error {
	settings, err := app.Config.RateLimits()
	if err != nil {
		return err
	}

	var opts []ratelimit.CounterOption
	if settings.Strategy == config.StrategySerialized {
		locker, err := app.newLocker()
		if err != nil {
			return err
		}
		opts = append(opts, ratelimit.WithLocker(locker))
	}
	app.Counter = ratelimit.NewCounter(app.Cache, opts...)

	app.Limiter = ratelimit.NewLimiter(app.Counter, settings, ratelimit.Options{
		TrustProxyHeaders: app.Config.TrustProxyHeaders,
		APIKeyHeader:      app.Config.APIKeyHeader,
	}, app.Logger)

	bf, err := app.Config.BruteForce()
	if err != nil {
		return err
	}
	app.Guard = bruteforce.New(app.Cache, bf)

	app.Logger.Info("Admission control configured",
		logging.Bool("enabled", settings.Enabled),
		logging.String("strategy", settings.Strategy),
		logging.Int("general_limit", settings.General.Limit),
		logging.Int("auth_limit", settings.Auth.Limit),
		logging.Int("brute_force_attempts", bf.MaxAttempts))
	return nil
}

// newLocker picks the lease implementation for the serialized strategy:
// redsync against the shared store, or in-process stripes for the memory
// backend.
func (app *App) newLocker() (locks.Locker, error) {
	if app.RedisClient == nil {
		return locks.NewLocalLocker(), nil
	}
	return locks.NewRedsyncLocker(app.RedisClient, locks.DefaultOptions())
}

func (app *App) initializeAuth() {
	app.Auth = auth.New(app.Config.JWTSecret)
	app.Validator = validation.New()

	var users []auth.User
	if app.Config.AdminEmail != "" {
		users = append(users, auth.User{
			ID:           "admin",
			Email:        app.Config.AdminEmail,
			Role:         "admin",
			PasswordHash: app.Config.AdminPasswordHash,
		})
	} else {
		app.Logger.Warn("No ADMIN_EMAIL configured, every login will be rejected")
	}
	app.Credentials = auth.NewStaticCredentials(users...)
}

// Status reports the cache components for the health endpoint.
func (app *App) Status(ctx context.Context) (map[string]string, bool) {
	components := map[string]string{"cache_backend": app.Config.CacheBackend}
	healthy := true

	if app.RedisClient != nil {
		state := app.RedisClient.State()
		components["cache"] = state.String()
		healthy = state == redis.StateReady
	}
	if app.Breaker != nil {
		state := app.Breaker.State()
		components["cache_breaker"] = state
		if state == "open" {
			healthy = false
		}
	}
	return components, healthy
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
