package config

import (
	"strings"
	"testing"
	"time"
)

// env builds a variable source from a map.
func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"DATABASE_URL": "postgres://localhost/iccid",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("Database.Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Generation.MaxBatchSize != 500000 {
		t.Errorf("Generation.MaxBatchSize = %d, want 500000", cfg.Generation.MaxBatchSize)
	}
	if cfg.Generation.Timeout != 5*time.Minute {
		t.Errorf("Generation.Timeout = %v, want 5m", cfg.Generation.Timeout)
	}
	if cfg.Retry.InitialInterval != 100*time.Millisecond {
		t.Errorf("Retry.InitialInterval = %v, want 100ms", cfg.Retry.InitialInterval)
	}
	if cfg.Registry.ExpectedMII != "89" {
		t.Errorf("Registry.ExpectedMII = %q, want 89", cfg.Registry.ExpectedMII)
	}
	if cfg.Registry.MaxCountryCodeLength != 3 {
		t.Errorf("Registry.MaxCountryCodeLength = %d, want 3", cfg.Registry.MaxCountryCodeLength)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v, want enabled at /metrics", cfg.Metrics)
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"DB_DRIVER":          "SQLite",
		"SQLITE_PATH":        "/tmp/batches.db",
		"SERVER_PORT":        "9090",
		"GEN_MAX_BATCH_SIZE": "1000",
		"GEN_TIMEOUT":        "90s",
		"LOG_LEVEL":          "DEBUG",
		"TRUSTED_PROXIES":    "10.0.0.0/8, 172.16.0.0/12,",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Generation.MaxBatchSize != 1000 {
		t.Errorf("Generation.MaxBatchSize = %d, want 1000", cfg.Generation.MaxBatchSize)
	}
	if cfg.Generation.Timeout != 90*time.Second {
		t.Errorf("Generation.Timeout = %v, want 90s", cfg.Generation.Timeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if len(cfg.Security.TrustedProxies) != 2 {
		t.Errorf("TrustedProxies = %v, want 2 entries", cfg.Security.TrustedProxies)
	}
}

func TestLoad_AlternateURLVariable(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{"DB_URL": "postgres://alt/db"}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Database.URL != "postgres://alt/db" {
		t.Errorf("Database.URL = %q, want DB_URL value", cfg.Database.URL)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		wantErr string
	}{
		{
			name:    "postgres without url",
			vars:    map[string]string{},
			wantErr: "DATABASE_URL is required",
		},
		{
			name:    "unknown driver",
			vars:    map[string]string{"DB_DRIVER": "mysql"},
			wantErr: "must be one of postgres,sqlite,memory",
		},
		{
			name:    "bad log format",
			vars:    map[string]string{"DB_DRIVER": "memory", "LOG_FORMAT": "xml"},
			wantErr: "LOG_FORMAT",
		},
		{
			name:    "bad duration",
			vars:    map[string]string{"DB_DRIVER": "memory", "GEN_TIMEOUT": "soon"},
			wantErr: "invalid duration",
		},
		{
			name:    "bad integer",
			vars:    map[string]string{"DB_DRIVER": "memory", "SERVER_PORT": "http"},
			wantErr: "invalid integer",
		},
		{
			name:    "port out of range",
			vars:    map[string]string{"DB_DRIVER": "memory", "SERVER_PORT": "70000"},
			wantErr: "SERVER_PORT (70000) must be 1-65535",
		},
		{
			name:    "zero batch ceiling",
			vars:    map[string]string{"DB_DRIVER": "memory", "GEN_MAX_BATCH_SIZE": "0"},
			wantErr: "GEN_MAX_BATCH_SIZE must be positive",
		},
		{
			name:    "mii not two digits",
			vars:    map[string]string{"DB_DRIVER": "memory", "REGISTRY_EXPECTED_MII": "8X"},
			wantErr: "REGISTRY_EXPECTED_MII",
		},
		{
			name:    "retry interval inverted",
			vars:    map[string]string{"DB_DRIVER": "memory", "STORE_RETRY_INITIAL_INTERVAL": "5s"},
			wantErr: "STORE_RETRY_MAX_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(env(tt.vars))
			if err == nil {
				t.Fatal("LoadFrom() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{"DB_DRIVER": "memory"}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	cfg.Server.Port = 0
	cfg.Generation.MaxConcurrent = 0
	cfg.Metrics.Path = "metrics"

	err = cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"SERVER_PORT", "GEN_MAX_CONCURRENT", "METRICS_PATH"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %s: %v", want, err)
		}
	}
}

func TestLoad_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("GEN_MAX_CONCURRENT", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Generation.MaxConcurrent != 2 {
		t.Errorf("Generation.MaxConcurrent = %d, want 2", cfg.Generation.MaxConcurrent)
	}
}

func TestString_MasksURL(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{"DATABASE_URL": "postgres://user:secret@db/iccid"}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	s := cfg.String()
	if strings.Contains(s, "secret") {
		t.Errorf("String() leaks credentials: %s", s)
	}
	if !strings.Contains(s, "[MASKED]") {
		t.Errorf("String() = %s, want masked URL", s)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"0.0.0.0", 8080, "0.0.0.0:8080"},
		{"", 9090, ":9090"},
		{"::1", 8080, "[::1]:8080"},
	}
	for _, tt := range tests {
		c := ServerConfig{Host: tt.host, Port: tt.port}
		if got := c.Addr(); got != tt.want {
			t.Errorf("Addr() = %q, want %q", got, tt.want)
		}
	}
}
