package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/greenroomhq/greenroom/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (distributed rate limiting)
	Redis RedisConfig

	// Auth configuration
	Auth AuthConfig

	// RBAC configuration
	RBAC RBACConfig

	// Audit configuration
	Audit AuditConfig

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

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis configuration. Redis is optional; without it
// rate limiting falls back to per-process limiters.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// Default token lifetime when a creation request does not set an
	// expiry. Zero means tokens never expire.
	DefaultTokenTTL time.Duration

	// How often the expired-token sweep runs (cron expression).
	CleanupSchedule string
}

// RBACConfig holds role configuration
type RBACConfig struct {
	// Path to the role seed file. Empty disables seed loading beyond
	// the built-in roles.
	SeedFile string

	// Reload the seed file when it changes on disk.
	WatchSeedFile bool
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	RetentionDays   int
	ArchiveEnabled  bool
	ArchivePath     string
	CleanupSchedule string

	// Mirror audit events to rotated files in addition to the database.
	FileLogEnabled bool
	FileLogPath    string
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
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		RBAC:          loadRBACConfig(),
		Audit:         loadAuditConfig(),
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
		Host:            getEnv("GREENROOM_HOST", "0.0.0.0"),
		Port:            getEnv("GREENROOM_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GREENROOM_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GREENROOM_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GREENROOM_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GREENROOM_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GREENROOM_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("GREENROOM_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("GREENROOM_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns: getEnvInt("GREENROOM_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("GREENROOM_POSTGRES_CONN_LIFETIME", 5*time.Minute),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("GREENROOM_REDIS_URL", ""),
		Password: getEnv("GREENROOM_REDIS_PASSWORD", ""),
		DB:       getEnvInt("GREENROOM_REDIS_DB", 0),
		PoolSize: getEnvInt("GREENROOM_REDIS_POOL_SIZE", 10),
	}
}

// loadAuthConfig loads authentication configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		DefaultTokenTTL: getEnvDuration("GREENROOM_TOKEN_TTL", 0),
		CleanupSchedule: getEnv("GREENROOM_TOKEN_CLEANUP_SCHEDULE", "0 3 * * *"),
	}
}

// loadRBACConfig loads role configuration from environment
func loadRBACConfig() RBACConfig {
	return RBACConfig{
		SeedFile:      getEnv("GREENROOM_ROLE_SEED_FILE", ""),
		WatchSeedFile: getEnvBool("GREENROOM_ROLE_SEED_WATCH", false),
	}
}

// loadAuditConfig loads audit configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		RetentionDays:   getEnvInt("GREENROOM_AUDIT_RETENTION_DAYS", 90),
		ArchiveEnabled:  getEnvBool("GREENROOM_AUDIT_ARCHIVE_ENABLED", false),
		ArchivePath:     getEnv("GREENROOM_AUDIT_ARCHIVE_PATH", "/var/greenroom/audit-archive"),
		CleanupSchedule: getEnv("GREENROOM_AUDIT_CLEANUP_SCHEDULE", "0 4 * * *"),
		FileLogEnabled:  getEnvBool("GREENROOM_AUDIT_FILE_LOG_ENABLED", false),
		FileLogPath:     getEnv("GREENROOM_AUDIT_FILE_LOG_PATH", "/var/log/greenroom/audit"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("GREENROOM_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("GREENROOM_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("GREENROOM_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GREENROOM_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GREENROOM_OTEL_SERVICE_NAME", "greenroom"),
		OTelServiceVersion: getEnv("GREENROOM_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("GREENROOM_OTEL_INSECURE", true),
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

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention must be at least one day")
	}
	if c.Audit.ArchiveEnabled && c.Audit.ArchivePath == "" {
		return fmt.Errorf("archive path is required when archiving is enabled")
	}

	if c.RBAC.WatchSeedFile && c.RBAC.SeedFile == "" {
		return fmt.Errorf("seed file path is required when seed watching is enabled")
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

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
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
