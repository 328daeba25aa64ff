package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Ingest.MaxConcurrent != 4 {
		t.Errorf("Ingest.MaxConcurrent = %d, want %d", cfg.Ingest.MaxConcurrent, 4)
	}
	if cfg.Ingest.PreviewBytes != 1000 {
		t.Errorf("Ingest.PreviewBytes = %d, want %d", cfg.Ingest.PreviewBytes, 1000)
	}
	if cfg.Paging.RetryDelay != 100*time.Millisecond {
		t.Errorf("Paging.RetryDelay = %v, want %v", cfg.Paging.RetryDelay, 100*time.Millisecond)
	}
	if cfg.Search.MaxPages != 30 {
		t.Errorf("Search.MaxPages = %d, want %d", cfg.Search.MaxPages, 30)
	}
	if cfg.Search.ScopeRadius != 1000 {
		t.Errorf("Search.ScopeRadius = %d, want %d", cfg.Search.ScopeRadius, 1000)
	}
	if cfg.Ingest.AllowedRoots != nil {
		t.Errorf("Ingest.AllowedRoots = %v, want nil", cfg.Ingest.AllowedRoots)
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("INGEST_MAX_CONCURRENT", "10")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SEARCH_PAGE_DELAY", "5ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Ingest.MaxConcurrent != 10 {
		t.Errorf("Ingest.MaxConcurrent = %d, want %d", cfg.Ingest.MaxConcurrent, 10)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Search.PageDelay != 5*time.Millisecond {
		t.Errorf("Search.PageDelay = %v, want %v", cfg.Search.PageDelay, 5*time.Millisecond)
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	t.Setenv("PORT", "7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 7070)
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid port")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("error should mention SERVER_PORT: %v", err)
	}
}

func TestLoad_SecretNotEchoed(t *testing.T) {
	t.Setenv("REQUIRE_API_KEY", "maybe")
	t.Setenv("API_KEYS", "k1,k2")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid boolean")
	}
	if strings.Contains(err.Error(), "k1") {
		t.Errorf("error leaks API key: %v", err)
	}
}

func TestLoad_CommaSeparatedList(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.0.0/16,,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"10.0.0.0/8", "192.168.0.0/16"}
	if len(cfg.Security.TrustedProxies) != len(want) {
		t.Fatalf("TrustedProxies = %v, want %v", cfg.Security.TrustedProxies, want)
	}
	for i := range want {
		if cfg.Security.TrustedProxies[i] != want[i] {
			t.Errorf("TrustedProxies[%d] = %q, want %q", i, cfg.Security.TrustedProxies[i], want[i])
		}
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jsonview.yaml")
	data := `
server:
  port: 9191
search:
  max_pages: 12
  scope_radius: 250
ingest:
  allowed_roots:
    - /srv/data
    - /tmp
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SEARCH_MAX_PAGES", "40")

	cfg, err := LoadWith(LoadOptions{File: path})
	if err != nil {
		t.Fatalf("LoadWith() error = %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9191)
	}
	if cfg.Search.MaxPages != 40 {
		t.Errorf("Search.MaxPages = %d, want %d (env beats file)", cfg.Search.MaxPages, 40)
	}
	if cfg.Search.ScopeRadius != 250 {
		t.Errorf("Search.ScopeRadius = %d, want %d", cfg.Search.ScopeRadius, 250)
	}
	if len(cfg.Ingest.AllowedRoots) != 2 || cfg.Ingest.AllowedRoots[0] != "/srv/data" {
		t.Errorf("Ingest.AllowedRoots = %v", cfg.Ingest.AllowedRoots)
	}
}

func TestLoad_FileFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  format: json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigFileEnv, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadWith(LoadOptions{File: filepath.Join(t.TempDir(), "absent.yaml")})
	if err == nil {
		t.Fatal("LoadWith() expected error for a missing explicit file")
	}
}

func TestLoad_Flags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--log-level", "warn", "--turbo", "true"}); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadWith(LoadOptions{Flags: fs})
	if err != nil {
		t.Fatalf("LoadWith() error = %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q (flag beats env)", cfg.Logging.Level, "warn")
	}
	if !cfg.Ingest.Turbo {
		t.Error("Ingest.Turbo = false, want true")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default when --port is unset", cfg.Server.Port)
	}
}

func TestRegisterFlags_KeepsExisting(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 1, "already defined")
	RegisterFlags(fs)
	if fs.Lookup("log-format") == nil {
		t.Error("log-format flag not registered")
	}
	if fs.Lookup("port").DefValue != "1" {
		t.Error("existing port flag was replaced")
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Ingest: IngestConfig{
			MaxFileSize: 1, MaxConcurrent: 1, MaxWaitTime: time.Second,
			PreviewBytes: 1000, FlushEvery: 100, TurboFlushEvery: 1000, FirstPageSize: 50,
		},
		Paging:  PagingConfig{PageSize: 50, PageSizeFinished: 500, ResetSize: 50, RetryAttempts: 30, RetryDelay: time.Millisecond},
		Search:  SearchConfig{PageSize: 5000, MaxPages: 30, ScopeRadius: 1000},
		Session: SessionConfig{MaxSessions: 1, JanitorInterval: time.Minute},
		Rate:    RateLimitConfig{Enabled: true, RequestsPerMinute: 100},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "SERVER_PORT"},
		{"zero search pages", func(c *Config) { c.Search.MaxPages = 0 }, "SEARCH_MAX_PAGES"},
		{"negative retry", func(c *Config) { c.Paging.RetryAttempts = -1 }, "PAGING_RETRY_ATTEMPTS"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"api key required", func(c *Config) { c.Security.RequireAPIKey = true }, "API_KEYS"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "METRICS_PATH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %s: %v", tt.wantErr, err)
			}
		})
	}
}

func TestServerAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"", 8080, ":8080"},
		{"0.0.0.0", 8080, "0.0.0.0:8080"},
		{"127.0.0.1", 3000, "127.0.0.1:3000"},
		{"::1", 443, "[::1]:443"},
	}

	for _, tt := range tests {
		cfg := &ServerConfig{Host: tt.host, Port: tt.port}
		got := cfg.Addr()
		if got != tt.want {
			t.Errorf("Addr() with host=%q, port=%d = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestConfigString_MasksAPIKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Security.APIKeys = []string{"super-secret"}
	str := cfg.String()
	if strings.Contains(str, "super-secret") {
		t.Error("String() should mask API keys")
	}
	if !strings.Contains(str, "MASKED") {
		t.Error("String() should contain MASKED placeholder")
	}
}

func TestSnake(t *testing.T) {
	tests := map[string]string{
		"Port":             "port",
		"MaxFileSize":      "max_file_size",
		"APIKeys":          "api_keys",
		"PageSizeFinished": "page_size_finished",
		"EnableCSP":        "enable_csp",
	}
	for in, want := range tests {
		if got := snake(in); got != want {
			t.Errorf("snake(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOptionConversions(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Ingest.PipelineOptions(); got.FlushEvery != 100 || got.TurboFlushEvery != 10000 {
		t.Errorf("PipelineOptions() = %+v", got)
	}
	if got := cfg.Paging.Options(); got.PageSizeFinished != 500 {
		t.Errorf("Paging.Options() = %+v", got)
	}
	if got := cfg.Search.Options(); got.PageSize != 5000 || got.CacheSize != 256 {
		t.Errorf("Search.Options() = %+v", got)
	}
}

func TestServiceOptions(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Session.MaxSessions = 3
	cfg.Ingest.MaxConcurrent = 2

	opts := cfg.ServiceOptions()
	if opts.MaxSessions != 3 || opts.MaxConcurrent != 2 {
		t.Errorf("ServiceOptions() limits = %d/%d, want 3/2", opts.MaxSessions, opts.MaxConcurrent)
	}
	if opts.MaxWait != 30*time.Second {
		t.Errorf("MaxWait = %v, want 30s", opts.MaxWait)
	}
	if opts.Search.MaxPages != 30 || opts.Pipeline.PreviewBytes != 1000 {
		t.Errorf("ServiceOptions() = %+v", opts)
	}
	if opts.ListenerBuffer == 0 {
		t.Error("ListenerBuffer not defaulted")
	}
}
