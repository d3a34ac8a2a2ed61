// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Storage drivers accepted by DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Retry      RetryConfig
	Generation GenerationConfig
	Registry   RegistryConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout stays 0 by default so large CSV exports are not cut off
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds non-generation requests (generation uses GEN_TIMEOUT)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig selects and tunes the batch store.
type DatabaseConfig struct {
	// Driver is the store backend: postgres, sqlite or memory
	Driver string `env:"DB_DRIVER" default:"postgres" oneof:"postgres,sqlite,memory"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SQLitePath is the database file for the sqlite driver
	SQLitePath string `env:"SQLITE_PATH" default:"iccid.db"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RetryConfig controls backoff on transient store failures.
type RetryConfig struct {
	Attempts        int           `env:"STORE_RETRY_ATTEMPTS" default:"3"`
	InitialInterval time.Duration `env:"STORE_RETRY_INITIAL_INTERVAL" default:"100ms"`
	MaxInterval     time.Duration `env:"STORE_RETRY_MAX_INTERVAL" default:"2s"`
}

// GenerationConfig bounds batch generation and analysis.
type GenerationConfig struct {
	// MaxBatchSize is the largest range a single batch may cover (default: 500000)
	MaxBatchSize int `env:"GEN_MAX_BATCH_SIZE" default:"500000"`

	// MaxConcurrent is the number of generations allowed to run at once (default: 4)
	MaxConcurrent int `env:"GEN_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a request waits for a generation slot (default: 30s)
	MaxWaitTime time.Duration `env:"GEN_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds one generation including analysis and save (default: 5m)
	Timeout time.Duration `env:"GEN_TIMEOUT" default:"5m"`

	// PreviewLimit caps the ids returned by the preview endpoint (default: 100)
	PreviewLimit int `env:"GEN_PREVIEW_LIMIT" default:"100"`

	// AnalyzeWorkers is the analyzer parallelism, 0 means GOMAXPROCS
	AnalyzeWorkers int `env:"GEN_ANALYZE_WORKERS" default:"0"`

	// AnalyzeChunk is the number of ids per analyzer task (default: 10000)
	AnalyzeChunk int `env:"GEN_ANALYZE_CHUNK" default:"10000"`

	// BulkAnalyzeLimit caps the ids accepted by the bulk analyze endpoint (default: 1000)
	BulkAnalyzeLimit int `env:"ANALYZE_BULK_LIMIT" default:"1000"`
}

// RegistryConfig controls the prefix tables and ICCID segmentation.
type RegistryConfig struct {
	// File overrides the embedded registry data with a YAML file
	File string `env:"REGISTRY_FILE"`

	ExpectedMII          string `env:"REGISTRY_EXPECTED_MII" default:"89"`
	DefaultIINLength     int    `env:"REGISTRY_DEFAULT_IIN_LENGTH" default:"7"`
	MaxIINLength         int    `env:"REGISTRY_MAX_IIN_LENGTH" default:"7"`
	MaxCountryCodeLength int    `env:"REGISTRY_MAX_COUNTRY_CODE_LENGTH" default:"3"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// GenerateLimit is requests per minute for generation endpoints (default: 10)
	GenerateLimit int `env:"RATE_LIMIT_GENERATE" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info" oneof:"debug,info,warn,error"`
	Format string `env:"LOG_FORMAT" default:"text" oneof:"text,json"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" default:"true"`
	Path    string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
