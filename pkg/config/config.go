package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/grantor/pkg/observability"
)

// Cache types
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds all engine configuration
type Config struct {
	// Authorization switches and policy location
	Authorization AuthorizationConfig

	// Database backing the permission and sharing providers
	Database DatabaseConfig

	// Cache configuration of the shared role caches
	Cache CacheConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// AuthorizationConfig holds the engine switches
type AuthorizationConfig struct {
	PermissionsEnabled bool
	SharingEnabled     bool

	// PolicyPath is the YAML policy file, empty for none
	PolicyPath  string
	WatchPolicy bool

	IdentityCacheSize int
	IdentityCacheTTL  time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver      string
	URL         string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	AutoMigrate bool

	// ReplicaCheckSchedule is the cron spec of the job dropping unreachable
	// replicas, empty to disable
	ReplicaCheckSchedule string
}

// CacheConfig holds role hierarchy cache settings
type CacheConfig struct {
	Type       string
	MemorySize int
	TTL        time.Duration

	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
	RedisNamespace  string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Authorization: loadAuthorizationConfig(),
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the configuration used when no variable is set
func DefaultConfig() *Config {
	return &Config{
		Authorization: AuthorizationConfig{
			PermissionsEnabled: true,
			SharingEnabled:     true,
			IdentityCacheSize:  1024,
			IdentityCacheTTL:   time.Minute,
		},
		Database: DatabaseConfig{
			MaxConns:    20,
			MinConns:    2,
			Timeout:     5 * time.Second,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,

			ReplicaCheckSchedule: "@every 30s",
		},
		Cache: CacheConfig{
			Type:            CacheMemory,
			MemorySize:      1024,
			TTL:             10 * time.Minute,
			RedisMaxRetries: 3,
			RedisPoolSize:   10,
			RedisNamespace:  "grantor",
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.InfoLevel,
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "grantor",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

func loadAuthorizationConfig() AuthorizationConfig {
	def := DefaultConfig().Authorization
	return AuthorizationConfig{
		PermissionsEnabled: getEnvBool("GRANTOR_PERMISSIONS_ENABLED", def.PermissionsEnabled),
		SharingEnabled:     getEnvBool("GRANTOR_SHARING_ENABLED", def.SharingEnabled),
		PolicyPath:         getEnv("GRANTOR_POLICY_PATH", ""),
		WatchPolicy:        getEnvBool("GRANTOR_POLICY_WATCH", false),
		IdentityCacheSize:  getEnvInt("GRANTOR_IDENTITY_CACHE_SIZE", def.IdentityCacheSize),
		IdentityCacheTTL:   getEnvDuration("GRANTOR_IDENTITY_CACHE_TTL", def.IdentityCacheTTL),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	cfg := DefaultConfig().Database

	cfg.Driver = getEnv("GRANTOR_DATABASE_DRIVER", "")
	cfg.URL = getEnv("GRANTOR_DATABASE_URL", "")
	if replicaURLs := getEnv("GRANTOR_DATABASE_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.ReplicaURLs = splitList(replicaURLs)
	}
	if maxConns := getEnvInt("GRANTOR_DATABASE_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("GRANTOR_DATABASE_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("GRANTOR_DATABASE_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}
	if lifetime := getEnvDuration("GRANTOR_DATABASE_MAX_LIFETIME", 0); lifetime > 0 {
		cfg.MaxLifetime = lifetime
	}
	if idle := getEnvDuration("GRANTOR_DATABASE_MAX_IDLE_TIME", 0); idle > 0 {
		cfg.MaxIdleTime = idle
	}
	cfg.AutoMigrate = getEnvBool("GRANTOR_DATABASE_AUTO_MIGRATE", false)
	cfg.ReplicaCheckSchedule = getEnv("GRANTOR_DATABASE_REPLICA_CHECK_SCHEDULE", cfg.ReplicaCheckSchedule)

	if cfg.Driver == "" && cfg.URL != "" {
		cfg.Driver = DriverPostgres
	}
	return cfg
}

func loadCacheConfig() CacheConfig {
	cfg := DefaultConfig().Cache

	if cacheType := getEnv("GRANTOR_CACHE_TYPE", ""); cacheType != "" {
		cfg.Type = strings.ToLower(cacheType)
	}
	if size := getEnvInt("GRANTOR_CACHE_SIZE", 0); size > 0 {
		cfg.MemorySize = size
	}
	if ttl := getEnvDuration("GRANTOR_CACHE_TTL", 0); ttl > 0 {
		cfg.TTL = ttl
	}

	// Redis config
	cfg.RedisURL = getEnv("GRANTOR_REDIS_URL", "")
	cfg.RedisPassword = getEnv("GRANTOR_REDIS_PASSWORD", "")
	if redisDB := getEnvInt("GRANTOR_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("GRANTOR_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("GRANTOR_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}
	if namespace := getEnv("GRANTOR_REDIS_NAMESPACE", ""); namespace != "" {
		cfg.RedisNamespace = namespace
	}

	return cfg
}

func loadObservabilityConfig() ObservabilityConfig {
	def := DefaultConfig().Observability
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("GRANTOR_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("GRANTOR_METRICS_ENABLED", def.MetricsEnabled),
		OTelEnabled:        getEnvBool("GRANTOR_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GRANTOR_OTEL_ENDPOINT", def.OTelEndpoint),
		OTelServiceName:    getEnv("GRANTOR_OTEL_SERVICE_NAME", def.OTelServiceName),
		OTelServiceVersion: getEnv("GRANTOR_OTEL_SERVICE_VERSION", def.OTelServiceVersion),
		OTelInsecure:       getEnvBool("GRANTOR_OTEL_INSECURE", def.OTelInsecure),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "":
	case DriverPostgres, DriverSQLite:
		if c.Database.URL == "" {
			return fmt.Errorf("database URL is required for the %s driver", c.Database.Driver)
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.ReplicaCheckSchedule != "" {
		if _, err := cron.ParseStandard(c.Database.ReplicaCheckSchedule); err != nil {
			return fmt.Errorf("invalid replica check schedule: %w", err)
		}
	}

	switch c.Cache.Type {
	case CacheMemory:
		if c.Cache.MemorySize <= 0 {
			return fmt.Errorf("cache size must be positive")
		}
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache type: %s (must be memory or redis)", c.Cache.Type)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache TTL must not be negative")
	}

	if c.Authorization.IdentityCacheSize < 0 {
		return fmt.Errorf("identity cache size must not be negative")
	}
	if c.Authorization.WatchPolicy && c.Authorization.PolicyPath == "" {
		return fmt.Errorf("policy path is required when policy watching is enabled")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// OTelConfig returns the tracing settings in the form InitOTel expects
func (c *Config) OTelConfig() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
