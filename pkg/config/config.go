package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/axle/pkg/observability"
	"github.com/platinummonkey/axle/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Auth configuration
	Auth AuthConfig

	// Billing configuration
	Billing BillingConfig

	// Rate limit configuration
	RateLimit RateLimitConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuthConfig holds token authentication settings
type AuthConfig struct {
	// Principal cache (token hash -> resolved principal)
	PrincipalCacheSize int
	PrincipalCacheTTL  time.Duration
}

// BillingConfig holds webhook ingestion settings
type BillingConfig struct {
	// Shared secret for webhook signature verification. Empty disables
	// verification (permissive mode for local development).
	WebhookSecret string

	// Archive raw webhook payloads to S3
	ArchiveEnabled bool
}

// RateLimitConfig holds request rate limiting settings
type RateLimitConfig struct {
	Enabled bool

	// Base allowance for callers whose plan has no specific rule
	RequestsPerMinute int
	Burst             int

	// Use Redis counters instead of in-memory buckets
	Distributed bool

	// Optional YAML file with per-plan overrides
	RulesPath string
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
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		Billing:       loadBillingConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("AXLE_HOST", "0.0.0.0"),
		Port:            getEnv("AXLE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("AXLE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("AXLE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("AXLE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("AXLE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("AXLE_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("AXLE_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("AXLE_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("AXLE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("AXLE_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("AXLE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// S3 config (webhook payload archive)
	if s3Endpoint := getEnv("AXLE_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("AXLE_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("AXLE_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("AXLE_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("AXLE_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("AXLE_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}

	// Redis config
	if redisURL := getEnv("AXLE_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("AXLE_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("AXLE_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("AXLE_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("AXLE_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	return cfg
}

// loadAuthConfig loads auth configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		PrincipalCacheSize: getEnvInt("AXLE_PRINCIPAL_CACHE_SIZE", 1024),
		PrincipalCacheTTL:  getEnvDuration("AXLE_PRINCIPAL_CACHE_TTL", 30*time.Second),
	}
}

// loadBillingConfig loads billing configuration from environment
func loadBillingConfig() BillingConfig {
	return BillingConfig{
		WebhookSecret:  getEnv("AXLE_WEBHOOK_SECRET", ""),
		ArchiveEnabled: getEnvBool("AXLE_WEBHOOK_ARCHIVE_ENABLED", false),
	}
}

// loadRateLimitConfig loads rate limit configuration from environment
func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("AXLE_RATE_LIMIT_ENABLED", true),
		RequestsPerMinute: getEnvInt("AXLE_RATE_LIMIT_RPM", 120),
		Burst:             getEnvInt("AXLE_RATE_LIMIT_BURST", 60),
		Distributed:       getEnvBool("AXLE_RATE_LIMIT_DISTRIBUTED", false),
		RulesPath:         getEnv("AXLE_RATE_LIMIT_RULES", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("AXLE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("AXLE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("AXLE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("AXLE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("AXLE_OTEL_SERVICE_NAME", "axle-api"),
		OTelServiceVersion: getEnv("AXLE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("AXLE_OTEL_INSECURE", true),
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate storage config
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	// Validate auth config
	if c.Auth.PrincipalCacheSize <= 0 {
		return fmt.Errorf("principal cache size must be positive")
	}
	if c.Auth.PrincipalCacheTTL <= 0 {
		return fmt.Errorf("principal cache TTL must be positive")
	}

	// Validate billing config
	if c.Billing.ArchiveEnabled {
		if c.Storage.S3Endpoint == "" || c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 configuration is required when webhook archival is enabled")
		}
	}

	// Validate rate limit config
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			return fmt.Errorf("rate limit requests per minute must be positive")
		}
		if c.RateLimit.Burst < 0 {
			return fmt.Errorf("rate limit burst must not be negative")
		}
	}
	if c.RateLimit.Distributed && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required for distributed rate limiting")
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
