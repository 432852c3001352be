package config

import (
	"fmt"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc returns the value of a configuration variable and whether it
// is set. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load reads the configuration from the process environment, applies
// defaults and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load with an explicit variable source.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	var cfg Config
	if err := populate(reflect.ValueOf(&cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// populate fills every tagged field of the section structs in v. Nested
// structs are walked; untagged fields keep their zero value.
func populate(v reflect.Value, lookup LookupFunc) error {
	for i := range v.NumField() {
		sf, fv := v.Type().Field(i), v.Field(i)
		if !sf.IsExported() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			if err := populate(fv, lookup); err != nil {
				return err
			}
			continue
		}

		name := sf.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, set := resolve(lookup, name, sf.Tag.Get("envAlt"))
		if !set {
			if sf.Tag.Get("required") == "true" {
				return fmt.Errorf("%s is required", name)
			}
			if raw = sf.Tag.Get("default"); raw == "" {
				continue
			}
		}

		parse, ok := parsers[sf.Type]
		if !ok {
			return fmt.Errorf("%s: no parser for %s", name, sf.Type)
		}
		parsed, err := parse(raw)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", name, raw, err)
		}
		fv.Set(reflect.ValueOf(parsed).Convert(sf.Type))
	}
	return nil
}

// resolve returns the first non-empty value of name or alt.
func resolve(lookup LookupFunc, name, alt string) (string, bool) {
	for _, key := range []string{name, alt} {
		if key == "" {
			continue
		}
		if v, ok := lookup(key); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// parsers convert a raw variable value for each supported field type.
var parsers = map[reflect.Type]func(string) (any, error){
	reflect.TypeOf(""): func(s string) (any, error) { return s, nil },
	reflect.TypeOf(0): func(s string) (any, error) {
		return strconv.Atoi(strings.TrimSpace(s))
	},
	reflect.TypeOf(int64(0)): func(s string) (any, error) {
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	},
	reflect.TypeOf(0.0): func(s string) (any, error) {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	},
	reflect.TypeOf(false): func(s string) (any, error) {
		return strconv.ParseBool(strings.TrimSpace(s))
	},
	reflect.TypeOf(time.Duration(0)): func(s string) (any, error) {
		return time.ParseDuration(strings.TrimSpace(s))
	},
	reflect.TypeOf([]string(nil)): func(s string) (any, error) {
		var list []string
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
		return list, nil
	},
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		fail("SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		fail("SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		fail("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxBodySize <= 0 {
		fail("SERVER_MAX_BODY_SIZE must be positive")
	}

	// Database (only when configured)
	if c.Database.Enabled() {
		if c.Database.MaxConns <= 0 {
			fail("DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			fail("DB_MIN_CONNS must be non-negative")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			fail("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	}

	// Export
	if c.Export.MaxLogRows <= 0 {
		fail("EXPORT_MAX_LOG_ROWS must be positive")
	}
	if c.Export.ColumnWidth <= 0 || c.Export.ColumnWidth > 255 {
		fail("EXPORT_COLUMN_WIDTH (%g) must be in (0, 255]", c.Export.ColumnWidth)
	}
	if c.Export.MaxConcurrent <= 0 {
		fail("EXPORT_MAX_CONCURRENT must be positive")
	}
	if c.Export.MaxWait <= 0 {
		fail("EXPORT_MAX_WAIT must be positive")
	}

	// Remote
	if c.Remote.Enabled() {
		if !strings.HasPrefix(c.Remote.URL, "http://") && !strings.HasPrefix(c.Remote.URL, "https://") {
			fail("REPORT_API_URL (%q) must be an http(s) URL", c.Remote.URL)
		}
		if c.Remote.Timeout <= 0 {
			fail("REPORT_API_TIMEOUT must be positive")
		}
	}

	// Storage: both or neither of endpoint and bucket
	if (c.Storage.S3Endpoint == "") != (c.Storage.S3Bucket == "") {
		fail("S3_ENDPOINT and S3_BUCKET must be set together")
	}

	// Rate limit
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		fail("RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.ExportLimit <= 0 {
		fail("RATE_LIMIT_EXPORT must be positive when rate limiting is enabled")
	}

	// History
	if c.History.RetentionDays <= 0 {
		fail("HISTORY_RETENTION_DAYS must be positive")
	}
	if c.History.CheckInterval <= 0 {
		fail("HISTORY_CHECK_INTERVAL must be positive")
	}

	// Security
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		fail("REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}
	for _, cidr := range c.Security.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil && net.ParseIP(cidr) == nil {
			fail("TRUSTED_PROXIES entry %q is not a CIDR or IP", cidr)
		}
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		fail("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		fail("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String returns a safe string representation of the config for logging.
// Credentials are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: %s, MaxConns: %d}, ", mask(c.Database.URL), c.Database.MaxConns)
	fmt.Fprintf(&b, "Export: {MaxLogRows: %d, ColumnWidth: %g, MaxConcurrent: %d}, ",
		c.Export.MaxLogRows, c.Export.ColumnWidth, c.Export.MaxConcurrent)
	fmt.Fprintf(&b, "Remote: {URL: %q, Token: %s}, ", c.Remote.URL, mask(c.Remote.Token))
	fmt.Fprintf(&b, "Storage: {DownloadDir: %q, S3Bucket: %q, S3SecretKey: %s}, ",
		c.Storage.DownloadDir, c.Storage.S3Bucket, mask(c.Storage.S3SecretKey))
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d}, ", c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
