package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ConfigFileEnv names the environment variable holding a config file path.
const ConfigFileEnv = "JSONVIEW_CONFIG"

// LoadOptions selects the optional sources layered over tag defaults and
// the environment.
type LoadOptions struct {
	// File is a YAML config file. Empty falls back to $JSONVIEW_CONFIG;
	// with neither set no file is read.
	File string

	// Flags, when set, overrides fields whose flag tag names a flag the
	// user changed. See RegisterFlags.
	Flags *pflag.FlagSet
}

// Load reads configuration from environment variables and the file named
// by $JSONVIEW_CONFIG, applies defaults for unset values and validates the
// result.
func Load() (*Config, error) {
	return LoadWith(LoadOptions{})
}

// LoadWith is Load with an explicit config file and flag set.
func LoadWith(opts LoadOptions) (*Config, error) {
	v := viper.New()
	fields := collectFields(reflect.TypeOf(Config{}), "", nil)

	for _, f := range fields {
		if f.def != "" {
			v.SetDefault(f.key, f.def)
		}
		names := []string{f.key, f.env}
		if f.envAlt != "" {
			names = append(names, f.envAlt)
		}
		if err := v.BindEnv(names...); err != nil {
			return nil, fmt.Errorf("config load: bind %s: %w", f.env, err)
		}
		if f.flag != "" && opts.Flags != nil {
			if fl := opts.Flags.Lookup(f.flag); fl != nil {
				if err := v.BindPFlag(f.key, fl); err != nil {
					return nil, fmt.Errorf("config load: bind --%s: %w", f.flag, err)
				}
			}
		}
	}

	file := opts.File
	if file == "" {
		file = os.Getenv(ConfigFileEnv)
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config load: read %s: %w", file, err)
		}
	}

	cfg := &Config{}
	root := reflect.ValueOf(cfg).Elem()
	for _, f := range fields {
		if err := f.load(v, root); err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
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

// RegisterFlags defines a string flag for every field carrying a flag tag.
// Values are parsed like environment variables, so "--port 9090" and
// SERVER_PORT=9090 behave the same.
func RegisterFlags(fs *pflag.FlagSet) {
	for _, f := range collectFields(reflect.TypeOf(Config{}), "", nil) {
		if f.flag == "" || fs.Lookup(f.flag) != nil {
			continue
		}
		usage := fmt.Sprintf("overrides %s", f.env)
		if f.def != "" {
			usage += fmt.Sprintf(" (default %s)", f.def)
		}
		fs.String(f.flag, "", usage)
	}
}

// field is one tagged leaf of Config.
type field struct {
	key      string // viper key, e.g. "ingest.max_file_size"
	index    []int
	env      string
	envAlt   string
	def      string
	flag     string
	required bool
	secret   bool
}

// collectFields walks t and returns every leaf field with an env tag.
func collectFields(t reflect.Type, prefix string, index []int) []field {
	var out []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		idx := append(append([]int(nil), index...), i)
		key := snake(sf.Name)
		if prefix != "" {
			key = prefix + "." + key
		}

		if sf.Type.Kind() == reflect.Struct && sf.Type != reflect.TypeOf(time.Time{}) {
			out = append(out, collectFields(sf.Type, key, idx)...)
			continue
		}

		env := sf.Tag.Get("env")
		if env == "" {
			continue
		}
		out = append(out, field{
			key:      key,
			index:    idx,
			env:      env,
			envAlt:   sf.Tag.Get("envAlt"),
			def:      sf.Tag.Get("default"),
			flag:     sf.Tag.Get("flag"),
			required: sf.Tag.Get("required") == "true",
			secret:   sf.Tag.Get("secret") == "true",
		})
	}
	return out
}

func (f field) load(v *viper.Viper, root reflect.Value) error {
	fv := root.FieldByIndex(f.index)

	raw := v.Get(f.key)
	if list, ok := raw.([]any); ok && fv.Kind() == reflect.Slice {
		// YAML sequences arrive as lists rather than comma-separated text.
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, fmt.Sprint(item))
		}
		raw = strings.Join(parts, ",")
	}

	value := ""
	if raw != nil {
		value = v.GetString(f.key)
		if s, ok := raw.(string); ok {
			value = s
		}
	}
	value = strings.TrimSpace(value)

	if value == "" {
		if f.required {
			return fmt.Errorf("required environment variable %s is not set", f.env)
		}
		return nil
	}

	if err := setField(fv, value); err != nil {
		shown := value
		if f.secret {
			shown = "[MASKED]"
		}
		return fmt.Errorf("invalid value for %s=%q: %w", f.env, shown, err)
	}
	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

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
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
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

// snake converts a Go field name to a YAML key: MaxFileSize -> max_file_size,
// APIKeys -> api_keys.
func snake(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || (nextLower && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Ingest validation
	if c.Ingest.MaxFileSize <= 0 {
		errs = append(errs, "INGEST_MAX_FILE_SIZE must be positive")
	}
	if c.Ingest.MaxConcurrent <= 0 {
		errs = append(errs, "INGEST_MAX_CONCURRENT must be positive")
	}
	if c.Ingest.MaxWaitTime <= 0 {
		errs = append(errs, "INGEST_MAX_WAIT_TIME must be positive")
	}
	if c.Ingest.PreviewBytes <= 0 {
		errs = append(errs, "INGEST_PREVIEW_BYTES must be positive")
	}
	if c.Ingest.FlushEvery <= 0 || c.Ingest.TurboFlushEvery <= 0 {
		errs = append(errs, "INGEST_FLUSH_EVERY and INGEST_TURBO_FLUSH_EVERY must be positive")
	}
	if c.Ingest.FirstPageSize <= 0 {
		errs = append(errs, "INGEST_FIRST_PAGE_SIZE must be positive")
	}
	if c.Ingest.Pause < 0 || c.Ingest.StartDelay < 0 {
		errs = append(errs, "INGEST_PAUSE and INGEST_START_DELAY must be non-negative")
	}

	// Paging validation
	if c.Paging.PageSize <= 0 || c.Paging.PageSizeFinished <= 0 || c.Paging.ResetSize <= 0 {
		errs = append(errs, "PAGING_PAGE_SIZE, PAGING_PAGE_SIZE_FINISHED and PAGING_RESET_SIZE must be positive")
	}
	if c.Paging.RetryAttempts < 0 || c.Paging.RetryDelay < 0 {
		errs = append(errs, "PAGING_RETRY_ATTEMPTS and PAGING_RETRY_DELAY must be non-negative")
	}

	// Search validation
	if c.Search.PageSize <= 0 {
		errs = append(errs, "SEARCH_PAGE_SIZE must be positive")
	}
	if c.Search.MaxPages <= 0 {
		errs = append(errs, "SEARCH_MAX_PAGES must be positive")
	}
	if c.Search.ScopeRadius <= 0 {
		errs = append(errs, "SEARCH_SCOPE_RADIUS must be positive")
	}

	// Session validation
	if c.Session.MaxSessions <= 0 {
		errs = append(errs, "SESSION_MAX must be positive")
	}
	if c.Session.JanitorInterval <= 0 {
		errs = append(errs, "SESSION_JANITOR_INTERVAL must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Sprintf("METRICS_PATH (%q) must start with /", c.Metrics.Path))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q}, ", c.Server.Addr())
	fmt.Fprintf(&b, "Ingest: {MaxFileSize: %d, MaxConcurrent: %d, Turbo: %v, AllowedRoots: %d}, ",
		c.Ingest.MaxFileSize, c.Ingest.MaxConcurrent, c.Ingest.Turbo, len(c.Ingest.AllowedRoots))
	fmt.Fprintf(&b, "Search: {PageSize: %d, MaxPages: %d, ScopeRadius: %d}, ",
		c.Search.PageSize, c.Search.MaxPages, c.Search.ScopeRadius)
	fmt.Fprintf(&b, "Session: {Max: %d, IdleTimeout: %s, Watch: %v}, ",
		c.Session.MaxSessions, c.Session.IdleTimeout, c.Session.Watch)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	keys := "[]"
	if len(c.Security.APIKeys) > 0 {
		keys = fmt.Sprintf("[MASKED x%d]", len(c.Security.APIKeys))
	}
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %s}, ", c.Security.RequireAPIKey, keys)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
