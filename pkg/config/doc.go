// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	AXLE_HOST="0.0.0.0"
//	AXLE_PORT="8080"
//	AXLE_HEALTH_PORT="9090"
//	AXLE_READ_TIMEOUT="15s"
//	AXLE_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	AXLE_POSTGRES_URL="postgres://localhost/axle"
//	AXLE_POSTGRES_REPLICA_URLS="postgres://replica1/axle,postgres://replica2/axle"
//	AXLE_POSTGRES_MAX_CONNS="20"
//	AXLE_REDIS_URL="redis://localhost:6379"
//	AXLE_S3_BUCKET="axle-webhook-archive"
//	AXLE_S3_REGION="us-east-1"
//
// Auth settings:
//
//	AXLE_PRINCIPAL_CACHE_SIZE="1024"
//	AXLE_PRINCIPAL_CACHE_TTL="30s"
//
// Billing settings:
//
//	AXLE_WEBHOOK_SECRET="whsec_..."  # empty skips signature verification
//	AXLE_WEBHOOK_ARCHIVE_ENABLED="true"
//
// Rate limit settings:
//
//	AXLE_RATE_LIMIT_ENABLED="true"
//	AXLE_RATE_LIMIT_RPM="120"
//	AXLE_RATE_LIMIT_BURST="60"
//	AXLE_RATE_LIMIT_DISTRIBUTED="false"
//	AXLE_RATE_LIMIT_RULES="/etc/axle/ratelimits.yaml"
//
// Observability settings:
//
//	AXLE_LOG_LEVEL="info"  # debug, info, warn, error
//	AXLE_METRICS_ENABLED="true"
//	AXLE_OTEL_ENABLED="true"
//	AXLE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
