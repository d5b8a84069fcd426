// Package config provides configuration management for the marketplace gateway.
// Values come from environment variables (optionally seeded from a .env file by
// the caller) with defaults; Validate reports every malformed value before the
// process starts serving.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FILE: Append logs to this file instead of stdout
//   - TLS_CERT_FILE / TLS_KEY_FILE: Serve HTTPS when both are set
//
// Cache Store:
//   - REDIS_URL: Store URL (default: redis://localhost:6379/0)
//   - REDIS_POOL_SIZE: Connection pool size (default: 10)
//   - REDIS_OP_TIMEOUT: Per-operation timeout (default: 2s)
//   - REDIS_MAX_RETRIES: Reconnect attempts before giving up (default: 10)
//   - REDIS_RETRY_INITIAL / REDIS_RETRY_MAX: Reconnect backoff bounds (default: 500ms / 30s)
//   - REDIS_HEALTH_INTERVAL: Health ping interval (default: 5s)
//   - CACHE_BACKEND: "redis" or "memory" (default: redis)
//   - CACHE_BREAKER_ENABLED: Short-circuit store calls while it is failing (default: true)
//
// Admission Control:
//   - RATE_LIMIT_ENABLED: Enable admission filters (default: true)
//   - RATE_LIMIT_STRATEGY: "best_effort" or "serialized" (default: best_effort)
//   - RATE_LIMIT_{GENERAL,AUTH,UPLOAD,API_KEY}_WINDOW / _LIMIT: per-filter overrides
//   - RATE_LIMIT_ROLE_WINDOW: Role filter window (default: 1h)
//   - RATE_LIMIT_ROLE_LIMITS: role=limit pairs (default: admin=1000,farmer=500,buyer=300,guest=100)
//   - RATE_LIMIT_ROLE_FILE: YAML file with a "roles" map, merged over RATE_LIMIT_ROLE_LIMITS
//   - BRUTE_FORCE_MAX_ATTEMPTS: Failed logins before lockout (default: 5)
//   - BRUTE_FORCE_LOCKOUT_SECONDS: Lockout duration (default: 900)
//   - TRUST_PROXY_HEADERS: Use X-Forwarded-For / X-Real-IP for the client IP (default: true)
//   - API_KEY_HEADER: Header carrying partner API keys (default: X-API-Key)
//
// Security:
//   - JWT_SECRET: HMAC secret for bearer tokens (required, minimum 32 characters)
//   - ADMIN_EMAIL / ADMIN_PASSWORD_HASH: bcrypt-hashed bootstrap credential
//   - ADMIN_TOKEN: Token for the cache administration endpoints
package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"marketplace-gateway/internal/common/utils"
)

// Config holds raw configuration values. All string fields correspond to
// environment variables; typed views are built by Redis, RateLimits and
// BruteForce once Validate has passed.
type Config struct {
	// Application settings
	Port     string
	LogLevel string
	LogFile  string
	TLSCert  string
	TLSKey   string

	// Cache store
	RedisURL            string
	RedisPoolSize       string
	RedisOpTimeout      string
	RedisMaxRetries     string
	RedisRetryInitial   string
	RedisRetryMax       string
	RedisHealthInterval string
	CacheBackend        string
	CacheBreakerEnabled bool

	// Admission control
	RateLimitEnabled  bool
	RateLimitStrategy string
	GeneralWindow     string
	GeneralLimit      string
	AuthWindow        string
	AuthLimit         string
	UploadWindow      string
	UploadLimit       string
	APIKeyWindow      string
	APIKeyLimit       string
	RoleWindow        string
	RoleLimits        string
	RoleLimitsFile    string
	TrustProxyHeaders bool
	APIKeyHeader      string

	// Brute-force guard
	BruteForceMaxAttempts    string
	BruteForceLockoutSeconds string

	// Security
	JWTSecret         string
	AdminEmail        string
	AdminPasswordHash string
	AdminToken        string
}

// Window is a (window length, capacity) pair for one admission filter.
type Window struct {
	Window time.Duration
	Limit  int
}

// RedisSettings is the typed view of the cache store configuration.
type RedisSettings struct {
	URL            string
	PoolSize       int
	OpTimeout      time.Duration
	MaxRetries     int
	RetryInitial   time.Duration
	RetryMax       time.Duration
	HealthInterval time.Duration
}

// RateLimitSettings is the typed, read-only policy configuration.
type RateLimitSettings struct {
	Enabled    bool
	Strategy   string
	General    Window
	Auth       Window
	Upload     Window
	APIKey     Window
	RoleWindow time.Duration
	RoleLimits map[string]int
}

// BruteForceSettings configures the login lockout.
type BruteForceSettings struct {
	MaxAttempts int
	Lockout     time.Duration
}

const (
	// StrategyBestEffort is the plain read-modify-write counter.
	StrategyBestEffort = "best_effort"
	// StrategySerialized wraps each counter update in a per-key lease.
	StrategySerialized = "serialized"

	// GuestRole is the role assigned to unauthenticated callers.
	GuestRole = "guest"

	defaultRoleLimits = "admin=1000,farmer=500,buyer=300,guest=100"
)

// Load creates a new Config with values from environment variables. It does
// not validate; call Validate before use.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
		TLSCert:  getEnv("TLS_CERT_FILE", ""),
		TLSKey:   getEnv("TLS_KEY_FILE", ""),

		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisPoolSize:       getEnv("REDIS_POOL_SIZE", "10"),
		RedisOpTimeout:      getEnv("REDIS_OP_TIMEOUT", "2s"),
		RedisMaxRetries:     getEnv("REDIS_MAX_RETRIES", "10"),
		RedisRetryInitial:   getEnv("REDIS_RETRY_INITIAL", "500ms"),
		RedisRetryMax:       getEnv("REDIS_RETRY_MAX", "30s"),
		RedisHealthInterval: getEnv("REDIS_HEALTH_INTERVAL", "5s"),
		CacheBackend:        strings.ToLower(getEnv("CACHE_BACKEND", "redis")),
		CacheBreakerEnabled: getBoolEnv("CACHE_BREAKER_ENABLED", true),

		RateLimitEnabled:  getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitStrategy: strings.ToLower(getEnv("RATE_LIMIT_STRATEGY", StrategyBestEffort)),
		GeneralWindow:     getEnv("RATE_LIMIT_GENERAL_WINDOW", "15m"),
		GeneralLimit:      getEnv("RATE_LIMIT_GENERAL_LIMIT", "100"),
		AuthWindow:        getEnv("RATE_LIMIT_AUTH_WINDOW", "15m"),
		AuthLimit:         getEnv("RATE_LIMIT_AUTH_LIMIT", "5"),
		UploadWindow:      getEnv("RATE_LIMIT_UPLOAD_WINDOW", "15m"),
		UploadLimit:       getEnv("RATE_LIMIT_UPLOAD_LIMIT", "10"),
		APIKeyWindow:      getEnv("RATE_LIMIT_API_KEY_WINDOW", "1h"),
		APIKeyLimit:       getEnv("RATE_LIMIT_API_KEY_LIMIT", "1000"),
		RoleWindow:        getEnv("RATE_LIMIT_ROLE_WINDOW", "1h"),
		RoleLimits:        getEnv("RATE_LIMIT_ROLE_LIMITS", defaultRoleLimits),
		RoleLimitsFile:    getEnv("RATE_LIMIT_ROLE_FILE", ""),
		TrustProxyHeaders: getBoolEnv("TRUST_PROXY_HEADERS", true),
		APIKeyHeader:      getEnv("API_KEY_HEADER", "X-API-Key"),

		BruteForceMaxAttempts:    getEnv("BRUTE_FORCE_MAX_ATTEMPTS", "5"),
		BruteForceLockoutSeconds: getEnv("BRUTE_FORCE_LOCKOUT_SECONDS", "900"),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		AdminEmail:        getEnv("ADMIN_EMAIL", ""),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		AdminToken:        getEnv("ADMIN_TOKEN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts the strconv.ParseBool spellings and falls back to
// defaultValue for anything else.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks required fields and that every typed view can be built.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.CacheBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("CACHE_BACKEND must be 'redis' or 'memory'")
	}

	if c.CacheBackend == "redis" {
		if _, err := c.Redis(); err != nil {
			return err
		}
	}
	if _, err := c.RateLimits(); err != nil {
		return err
	}
	if _, err := c.BruteForce(); err != nil {
		return err
	}

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	if (c.AdminEmail == "") != (c.AdminPasswordHash == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD_HASH must be set together")
	}
	return nil
}

// Redis returns the typed cache store settings.
func (c *Config) Redis() (RedisSettings, error) {
	var s RedisSettings
	var err error

	u, perr := url.Parse(c.RedisURL)
	if perr != nil || (u.Scheme != "redis" && u.Scheme != "rediss") || u.Host == "" {
		return s, fmt.Errorf("REDIS_URL must be a redis:// or rediss:// URL")
	}
	s.URL = c.RedisURL

	if s.PoolSize, err = positiveInt("REDIS_POOL_SIZE", c.RedisPoolSize); err != nil {
		return s, err
	}
	if s.MaxRetries, err = positiveInt("REDIS_MAX_RETRIES", c.RedisMaxRetries); err != nil {
		return s, err
	}
	if s.OpTimeout, err = positiveDuration("REDIS_OP_TIMEOUT", c.RedisOpTimeout); err != nil {
		return s, err
	}
	if s.RetryInitial, err = positiveDuration("REDIS_RETRY_INITIAL", c.RedisRetryInitial); err != nil {
		return s, err
	}
	if s.RetryMax, err = positiveDuration("REDIS_RETRY_MAX", c.RedisRetryMax); err != nil {
		return s, err
	}
	if s.HealthInterval, err = positiveDuration("REDIS_HEALTH_INTERVAL", c.RedisHealthInterval); err != nil {
		return s, err
	}
	if s.RetryMax < s.RetryInitial {
		return s, fmt.Errorf("REDIS_RETRY_MAX must not be shorter than REDIS_RETRY_INITIAL")
	}
	return s, nil
}

// RateLimits returns the typed admission policy settings.
func (c *Config) RateLimits() (RateLimitSettings, error) {
	s := RateLimitSettings{Enabled: c.RateLimitEnabled, Strategy: c.RateLimitStrategy}

	switch s.Strategy {
	case StrategyBestEffort, StrategySerialized:
	default:
		return s, fmt.Errorf("RATE_LIMIT_STRATEGY must be '%s' or '%s'", StrategyBestEffort, StrategySerialized)
	}

	var err error
	if s.General, err = window("RATE_LIMIT_GENERAL", c.GeneralWindow, c.GeneralLimit); err != nil {
		return s, err
	}
	if s.Auth, err = window("RATE_LIMIT_AUTH", c.AuthWindow, c.AuthLimit); err != nil {
		return s, err
	}
	if s.Upload, err = window("RATE_LIMIT_UPLOAD", c.UploadWindow, c.UploadLimit); err != nil {
		return s, err
	}
	if s.APIKey, err = window("RATE_LIMIT_API_KEY", c.APIKeyWindow, c.APIKeyLimit); err != nil {
		return s, err
	}
	if s.RoleWindow, err = positiveDuration("RATE_LIMIT_ROLE_WINDOW", c.RoleWindow); err != nil {
		return s, err
	}

	if s.RoleLimits, err = ParseRoleLimits(c.RoleLimits); err != nil {
		return s, err
	}
	if c.RoleLimitsFile != "" {
		fromFile, err := LoadRoleLimitsFile(c.RoleLimitsFile)
		if err != nil {
			return s, err
		}
		for role, limit := range fromFile {
			s.RoleLimits[role] = limit
		}
	}
	if _, ok := s.RoleLimits[GuestRole]; !ok {
		return s, fmt.Errorf("role limits must define the %q role", GuestRole)
	}
	return s, nil
}

// BruteForce returns the typed lockout settings.
func (c *Config) BruteForce() (BruteForceSettings, error) {
	var s BruteForceSettings
	var err error
	if s.MaxAttempts, err = positiveInt("BRUTE_FORCE_MAX_ATTEMPTS", c.BruteForceMaxAttempts); err != nil {
		return s, err
	}
	seconds, err := positiveInt("BRUTE_FORCE_LOCKOUT_SECONDS", c.BruteForceLockoutSeconds)
	if err != nil {
		return s, err
	}
	s.Lockout = time.Duration(seconds) * time.Second
	return s, nil
}

// ParseRoleLimits parses "role=limit" pairs separated by commas. Role names
// are lower-cased.
func ParseRoleLimits(raw string) (map[string]int, error) {
	limits := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		role, value, ok := strings.Cut(pair, "=")
		role = strings.ToLower(strings.TrimSpace(role))
		if !ok || role == "" {
			return nil, fmt.Errorf("RATE_LIMIT_ROLE_LIMITS: malformed pair %q", pair)
		}
		limit, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || limit < 1 {
			return nil, fmt.Errorf("RATE_LIMIT_ROLE_LIMITS: limit for %q must be a positive number", role)
		}
		limits[role] = limit
	}
	return limits, nil
}

// roleFile is the YAML layout of RATE_LIMIT_ROLE_FILE.
type roleFile struct {
	Roles map[string]int `yaml:"roles"`
}

// LoadRoleLimitsFile reads a YAML document of the form
//
//	roles:
//	  admin: 1000
//	  guest: 100
func LoadRoleLimitsFile(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_ROLE_FILE: %w", err)
	}

	var doc roleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_ROLE_FILE: invalid YAML: %w", err)
	}

	limits := make(map[string]int, len(doc.Roles))
	roles := make([]string, 0, len(doc.Roles))
	for role := range doc.Roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		limit := doc.Roles[role]
		if limit < 1 {
			return nil, fmt.Errorf("RATE_LIMIT_ROLE_FILE: limit for %q must be a positive number", role)
		}
		limits[strings.ToLower(strings.TrimSpace(role))] = limit
	}
	return limits, nil
}

func window(prefix, rawWindow, rawLimit string) (Window, error) {
	var w Window
	var err error
	if w.Window, err = positiveDuration(prefix+"_WINDOW", rawWindow); err != nil {
		return w, err
	}
	if w.Limit, err = positiveInt(prefix+"_LIMIT", rawLimit); err != nil {
		return w, err
	}
	return w, nil
}

func positiveInt(name, raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive number", name)
	}
	return v, nil
}

func positiveDuration(name, raw string) (time.Duration, error) {
	d, err := utils.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration (e.g. '15m', '1h')", name)
	}
	return d, nil
}
