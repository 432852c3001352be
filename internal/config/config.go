// Package config provides centralized configuration management for the export
// service. It loads configuration from environment variables with sensible
// defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Export   ExportConfig
	Remote   RemoteConfig
	Storage  StorageConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	History  HistoryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"120s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 90s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"90s"`

	// MaxBodySize caps export request bodies in bytes (default: 32MB)
	MaxBodySize int64 `env:"SERVER_MAX_BODY_SIZE" default:"33554432"`
}

// DatabaseConfig holds the optional history database settings. Without a
// URL, history is kept in memory.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool { return c.URL != "" }

// ExportConfig holds export rendering and concurrency settings.
type ExportConfig struct {
	// MaxLogRows truncates the log block of composite documents (default: 50)
	MaxLogRows int `env:"EXPORT_MAX_LOG_ROWS" default:"50"`

	// ColumnWidth is the workbook column width in characters (default: 20)
	ColumnWidth float64 `env:"EXPORT_COLUMN_WIDTH" default:"20"`

	// DefaultTitle is the document title when a request sets none
	DefaultTitle string `env:"EXPORT_DEFAULT_TITLE" default:"Data Export"`

	// MaxConcurrent is the maximum number of exports rendered at once (default: 4)
	MaxConcurrent int `env:"EXPORT_MAX_CONCURRENT" default:"4"`

	// MaxWait is how long a request waits for an export slot (default: 30s)
	MaxWait time.Duration `env:"EXPORT_MAX_WAIT" default:"30s"`
}

// RemoteConfig holds the report service settings.
type RemoteConfig struct {
	// URL is the base URL of the report service API. Report endpoints are
	// disabled when empty.
	URL     string        `env:"REPORT_API_URL"`
	Token   string        `env:"REPORT_API_TOKEN"`
	Timeout time.Duration `env:"REPORT_API_TIMEOUT" default:"60s"`

	// Catalog is an optional YAML file replacing the built-in report catalog
	Catalog string `env:"REPORT_CATALOG"`
}

// Enabled reports whether a report service is configured.
func (c *RemoteConfig) Enabled() bool { return c.URL != "" }

// StorageConfig selects where server-side copies of exports go. HTTP
// responses are always the primary delivery.
type StorageConfig struct {
	// DownloadDir is where the CLI writes exports (default: exports)
	DownloadDir string `env:"DOWNLOAD_DIR" default:"exports"`

	// S3 settings; an archive copy of every export is uploaded when
	// S3_ENDPOINT and S3_BUCKET are set.
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Region    string `env:"S3_REGION"`
	S3Prefix    string `env:"S3_PREFIX" default:"exports/"`
	S3UseSSL    bool   `env:"S3_USE_SSL" default:"true"`
}

// ObjectStoreEnabled reports whether an object store is configured.
func (c *StorageConfig) ObjectStoreEnabled() bool {
	return c.S3Endpoint != "" && c.S3Bucket != ""
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ExportLimit is requests per minute for export endpoints (default: 20)
	ExportLimit int `env:"RATE_LIMIT_EXPORT" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey enables X-API-Key authentication on /api routes
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// HistoryConfig holds export history settings.
type HistoryConfig struct {
	// RetentionDays is days to keep history entries (default: 90)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"90"`

	// CheckInterval is how often the retention job runs (default: 24h)
	CheckInterval time.Duration `env:"HISTORY_CHECK_INTERVAL" default:"24h"`

	// MemoryCapacity bounds the in-memory store used without a database
	MemoryCapacity int `env:"HISTORY_MEMORY_CAPACITY" default:"10000"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
