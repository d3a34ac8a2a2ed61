package config

import (
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with a custom variable source.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct recursively populates struct fields from the variable source.
//
// Supported tags:
//
//	env      primary variable name
//	envAlt   fallback variable name
//	default  value used when both are unset
//	required "true" fails the load when no value is found
//	oneof    comma-separated allowed values, compared case-insensitively
func loadStruct(v reflect.Value, getenv func(string) string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, getenv); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := strings.TrimSpace(getenv(envName))
		if envAlt := field.Tag.Get("envAlt"); value == "" && envAlt != "" {
			value = strings.TrimSpace(getenv(envAlt))
		}

		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if oneof := field.Tag.Get("oneof"); oneof != "" {
			value = strings.ToLower(value)
			if !slices.Contains(strings.Split(oneof, ","), value) {
				return fmt.Errorf("invalid value for %s=%q: must be one of %s", envName, value, oneof)
			}
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		var result []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks cross-field constraints and ranges.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	// Database
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			add("DATABASE_URL is required when DB_DRIVER=postgres")
		}
		if c.Database.MaxConns <= 0 {
			add("DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			add("DB_MIN_CONNS must be non-negative")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			add("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			add("SQLITE_PATH is required when DB_DRIVER=sqlite")
		}
	case DriverMemory:
	default:
		add("DB_DRIVER (%q) must be one of: postgres, sqlite, memory", c.Database.Driver)
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		add("SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Retry
	if c.Retry.Attempts <= 0 {
		add("STORE_RETRY_ATTEMPTS must be positive")
	}
	if c.Retry.InitialInterval <= 0 {
		add("STORE_RETRY_INITIAL_INTERVAL must be positive")
	}
	if c.Retry.MaxInterval < c.Retry.InitialInterval {
		add("STORE_RETRY_MAX_INTERVAL must be >= STORE_RETRY_INITIAL_INTERVAL")
	}

	// Generation
	if c.Generation.MaxBatchSize <= 0 {
		add("GEN_MAX_BATCH_SIZE must be positive")
	}
	if c.Generation.MaxConcurrent <= 0 {
		add("GEN_MAX_CONCURRENT must be positive")
	}
	if c.Generation.MaxWaitTime <= 0 {
		add("GEN_MAX_WAIT_TIME must be positive")
	}
	if c.Generation.Timeout <= 0 {
		add("GEN_TIMEOUT must be positive")
	}
	if c.Generation.PreviewLimit <= 0 {
		add("GEN_PREVIEW_LIMIT must be positive")
	}
	if c.Generation.AnalyzeWorkers < 0 {
		add("GEN_ANALYZE_WORKERS must be non-negative")
	}
	if c.Generation.AnalyzeChunk <= 0 {
		add("GEN_ANALYZE_CHUNK must be positive")
	}
	if c.Generation.BulkAnalyzeLimit <= 0 {
		add("ANALYZE_BULK_LIMIT must be positive")
	}

	// Registry
	if len(c.Registry.ExpectedMII) != 2 || strings.Trim(c.Registry.ExpectedMII, "0123456789") != "" {
		add("REGISTRY_EXPECTED_MII (%q) must be two digits", c.Registry.ExpectedMII)
	}
	if c.Registry.MaxIINLength <= 0 || c.Registry.MaxIINLength > 18 {
		add("REGISTRY_MAX_IIN_LENGTH must be 1-18")
	}
	if c.Registry.DefaultIINLength <= 0 || c.Registry.DefaultIINLength > 18 {
		add("REGISTRY_DEFAULT_IIN_LENGTH must be 1-18")
	}
	if c.Registry.MaxCountryCodeLength <= 0 || c.Registry.MaxCountryCodeLength > 3 {
		add("REGISTRY_MAX_COUNTRY_CODE_LENGTH must be 1-3")
	}

	// Rate limit
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		add("RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.GenerateLimit <= 0 {
		add("RATE_LIMIT_GENERATE must be positive when rate limiting is enabled")
	}

	// Metrics
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		add("METRICS_PATH (%q) must start with /", c.Metrics.Path)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The database URL is masked.
func (c *Config) String() string {
	url := ""
	if c.Database.URL != "" {
		url = "[MASKED]"
	}
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {Driver: %q, URL: %s, SQLitePath: %q, MaxConns: %d}, ",
		c.Database.Driver, url, c.Database.SQLitePath, c.Database.MaxConns)
	fmt.Fprintf(&b, "Generation: {MaxBatchSize: %d, MaxConcurrent: %d, Timeout: %s}, ",
		c.Generation.MaxBatchSize, c.Generation.MaxConcurrent, c.Generation.Timeout)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
