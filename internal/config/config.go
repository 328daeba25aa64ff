// Package config provides centralized configuration management for the
// server, the stdio worker and the CLI. Settings come from struct tags
// (defaults), an optional YAML file, environment variables and command-line
// flags, in increasing order of precedence, and are validated on startup
// to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/JonMunkholm/jsonview/internal/core"
	"github.com/JonMunkholm/jsonview/internal/ingest"
	"github.com/JonMunkholm/jsonview/internal/paging"
	"github.com/JonMunkholm/jsonview/internal/search"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Ingest   IngestConfig
	Paging   PagingConfig
	Search   SearchConfig
	Session  SessionConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0" flag:"host"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080" flag:"port"`

	// ReadTimeout is the maximum duration for reading a request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is 0 so SSE streams are not cut off
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds the graceful drain of running ingests (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout applies to non-streaming routes (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// IngestConfig holds document ingestion settings.
type IngestConfig struct {
	// MaxFileSize is the largest accepted upload in bytes (default: 2GiB)
	MaxFileSize int64 `env:"INGEST_MAX_FILE_SIZE" default:"2147483648"`

	// MaxConcurrent is the number of full passes allowed to run at once (default: 4)
	MaxConcurrent int `env:"INGEST_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a new document waits for an ingest slot (default: 30s)
	MaxWaitTime time.Duration `env:"INGEST_MAX_WAIT_TIME" default:"30s"`

	// Turbo makes the full pass flush in large batches without pausing
	Turbo bool `env:"INGEST_TURBO" default:"false" flag:"turbo"`

	// PreviewBytes is the size of the fragment parsed by the preview pass (default: 1000)
	PreviewBytes int `env:"INGEST_PREVIEW_BYTES" default:"1000"`

	FlushEvery       int           `env:"INGEST_FLUSH_EVERY" default:"100"`
	TurboFlushEvery  int           `env:"INGEST_TURBO_FLUSH_EVERY" default:"10000"`
	Pause            time.Duration `env:"INGEST_PAUSE" default:"1ms"`
	StartDelay       time.Duration `env:"INGEST_START_DELAY" default:"100ms"`
	FirstPageSize    int           `env:"INGEST_FIRST_PAGE_SIZE" default:"50"`
	ProgressInterval time.Duration `env:"INGEST_PROGRESS_INTERVAL" default:"250ms"`

	// TolerantMaxBytes caps the input size for which a failed strict pass is
	// retried with the tolerant parser (default: 64MiB)
	TolerantMaxBytes int64 `env:"INGEST_TOLERANT_MAX_BYTES" default:"67108864"`

	// AllowedRoots lists directories server-local paths may be opened from.
	// Empty disables opening documents by path over HTTP.
	AllowedRoots []string `env:"INGEST_ALLOWED_ROOTS"`
}

// PagingConfig holds page sizes and the wait budget for short pages.
type PagingConfig struct {
	PageSize         int           `env:"PAGING_PAGE_SIZE" default:"50"`
	PageSizeFinished int           `env:"PAGING_PAGE_SIZE_FINISHED" default:"500"`
	ResetSize        int           `env:"PAGING_RESET_SIZE" default:"50"`
	RetryAttempts    int           `env:"PAGING_RETRY_ATTEMPTS" default:"30"`
	RetryDelay       time.Duration `env:"PAGING_RETRY_DELAY" default:"100ms"`
}

// SearchConfig holds search streaming settings.
type SearchConfig struct {
	// PageSize is the number of rows per streamed search page (default: 5000)
	PageSize int `env:"SEARCH_PAGE_SIZE" default:"5000"`

	// MaxPages is the most pages streamed before switching to a scoped window (default: 30)
	MaxPages int `env:"SEARCH_MAX_PAGES" default:"30"`

	// ScopeRadius is the number of rows kept on each side of a scoped match (default: 1000)
	ScopeRadius int `env:"SEARCH_SCOPE_RADIUS" default:"1000"`

	PageDelay time.Duration `env:"SEARCH_PAGE_DELAY" default:"1ms"`
	CacheSize int           `env:"SEARCH_CACHE_SIZE" default:"256"`
}

// SessionConfig holds document session settings.
type SessionConfig struct {
	// MaxSessions is the number of documents held open at once (default: 32)
	MaxSessions int `env:"SESSION_MAX" default:"32"`

	// IdleTimeout closes sessions nobody touched for this long (default: 30m)
	IdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" default:"30m"`

	// JanitorInterval is how often idle sessions are swept (default: 1m)
	JanitorInterval time.Duration `env:"SESSION_JANITOR_INTERVAL" default:"1m"`

	// Watch reloads file-backed documents when the file changes
	Watch bool `env:"SESSION_WATCH" default:"false" flag:"watch"`

	// WatchDebounce coalesces bursts of file events (default: 250ms)
	WatchDebounce time.Duration `env:"SESSION_WATCH_DEBOUNCE" default:"250ms"`
}

// RateLimitConfig holds rate limiting settings per client.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 600)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"600"`

	// UploadLimit is requests per minute for document creation (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey enforces X-API-Key on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS" secret:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info" flag:"log-level"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text" flag:"log-format"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" default:"true"`
	Path    string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// PipelineOptions converts the ingest settings for ingest.NewPipeline.
func (c *IngestConfig) PipelineOptions() ingest.Options {
	return ingest.Options{
		PreviewBytes:     c.PreviewBytes,
		FlushEvery:       c.FlushEvery,
		TurboFlushEvery:  c.TurboFlushEvery,
		Pause:            c.Pause,
		StartDelay:       c.StartDelay,
		FirstPageSize:    c.FirstPageSize,
		TolerantMaxBytes: c.TolerantMaxBytes,
		ProgressInterval: c.ProgressInterval,
	}
}

func (c *PagingConfig) Options() paging.Options {
	return paging.Options{
		PageSize:         c.PageSize,
		PageSizeFinished: c.PageSizeFinished,
		ResetSize:        c.ResetSize,
		RetryAttempts:    c.RetryAttempts,
		RetryDelay:       c.RetryDelay,
	}
}

func (c *SearchConfig) Options() search.Options {
	return search.Options{
		PageSize:    c.PageSize,
		MaxPages:    c.MaxPages,
		ScopeRadius: c.ScopeRadius,
		PageDelay:   c.PageDelay,
		CacheSize:   c.CacheSize,
	}
}

// ServiceOptions assembles the core.Service options from every section.
func (c *Config) ServiceOptions() core.Options {
	opts := core.DefaultOptions()
	opts.Pipeline = c.Ingest.PipelineOptions()
	opts.Paging = c.Paging.Options()
	opts.Search = c.Search.Options()
	opts.MaxSessions = c.Session.MaxSessions
	opts.MaxConcurrent = c.Ingest.MaxConcurrent
	opts.MaxWait = c.Ingest.MaxWaitTime
	return opts
}
