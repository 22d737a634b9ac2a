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
//	GREENROOM_HOST="0.0.0.0"
//	GREENROOM_PORT="8080"
//	GREENROOM_HEALTH_PORT="9090"
//	GREENROOM_READ_TIMEOUT="15s"
//	GREENROOM_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	GREENROOM_POSTGRES_URL="postgres://localhost/greenroom"
//	GREENROOM_POSTGRES_MAX_CONNS="25"
//
// Redis settings (optional, enables distributed rate limiting):
//
//	GREENROOM_REDIS_URL="redis://localhost:6379"
//	GREENROOM_REDIS_POOL_SIZE="10"
//
// Auth and role settings:
//
//	GREENROOM_TOKEN_TTL="720h"  # empty means tokens never expire
//	GREENROOM_TOKEN_CLEANUP_SCHEDULE="0 3 * * *"
//	GREENROOM_ROLE_SEED_FILE="/etc/greenroom/roles.yaml"
//	GREENROOM_ROLE_SEED_WATCH="true"
//
// Audit settings:
//
//	GREENROOM_AUDIT_RETENTION_DAYS="90"
//	GREENROOM_AUDIT_ARCHIVE_ENABLED="true"
//	GREENROOM_AUDIT_ARCHIVE_PATH="/var/greenroom/audit-archive"
//
// Observability settings:
//
//	GREENROOM_LOG_LEVEL="info"  # debug, info, warn, error
//	GREENROOM_METRICS_ENABLED="true"
//	GREENROOM_OTEL_ENABLED="true"
//	GREENROOM_OTEL_ENDPOINT="otel-collector:4317"
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
//	fmt.Printf("Log level: %v\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/observability: Uses observability configuration
//   - pkg/audit: Uses audit retention configuration
package config
