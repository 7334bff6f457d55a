// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Worker   WorkerConfig
	Queue    QueueConfig
	Schema   SchemaConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// CORSAllowedOrigins is a comma-separated list of browser origins (default: *)
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"*"`

	// TrustedProxies lists proxy CIDRs whose X-Real-IP and X-Forwarded-For are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// DatabaseConfig holds database connection settings.
// An empty URL runs the server on in-memory stores.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string in URL form.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Migrate applies the embedded migrations at startup (default: true)
	Migrate bool `env:"DB_MIGRATE" default:"true"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// ImportConfig holds upload and preview limits.
type ImportConfig struct {
	// MaxFileSize is the maximum accepted workbook size in bytes (default: 10MiB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"10485760"`

	// MaxRows is the maximum number of data rows per workbook (default: 5000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"5000"`

	// MaxConcurrent is the maximum number of previews parsed at once (default: 5)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long a preview waits for a parse slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`
}

// WorkerConfig holds background job settings.
type WorkerConfig struct {
	// Concurrency is the number of jobs run at once per process (default: 4)
	Concurrency int `env:"WORKER_CONCURRENCY" default:"4"`

	// JobTimeout bounds a single job run (default: 30m)
	JobTimeout time.Duration `env:"WORKER_JOB_TIMEOUT" default:"30m"`

	// RowRetries is how often a row is retried after an infrastructure error (default: 3)
	RowRetries int `env:"WORKER_ROW_RETRIES" default:"3"`

	// RetryBackoff is the first retry delay, doubled per attempt (default: 200ms)
	RetryBackoff time.Duration `env:"WORKER_RETRY_BACKOFF" default:"200ms"`

	// SweepInterval is how often stuck jobs are looked for (default: 1m)
	SweepInterval time.Duration `env:"WORKER_SWEEP_INTERVAL" default:"1m"`

	// StaleAfter is the grace period before a job counts as stuck (default: 2m)
	StaleAfter time.Duration `env:"WORKER_STALE_AFTER" default:"2m"`
}

// QueueConfig holds Redis queue settings. An empty RedisAddr dispatches
// jobs to an in-process worker pool.
type QueueConfig struct {
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" default:"0"`

	// Name is the asynq queue name (default: imports)
	Name string `env:"QUEUE_NAME" default:"imports"`
}

// Enabled reports whether a Redis queue is configured.
func (c *QueueConfig) Enabled() bool {
	return c.RedisAddr != ""
}

// SchemaConfig points at extra module schemas.
type SchemaConfig struct {
	// File is a YAML or JSON file with additional module schemas
	File string `env:"SCHEMA_FILE"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// UploadLimit is requests per minute for preview and confirm (default: 20)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"20"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
