// Package config provides configuration management for orsa.
package config

import (
	"fmt"
	"time"

	"github.com/orsa-go/orsa/pkg/saga"
)

// Config is the global configuration for orsa.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the admin HTTP API configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Manager configures the saga manager loop.
	Manager ManagerConfig `mapstructure:"manager"`

	// Retry is the default step retry policy.
	Retry RetryConfig `mapstructure:"retry"`

	// Storage selects where saga snapshots are persisted.
	Storage StorageConfig `mapstructure:"storage"`

	// Events configures lifecycle event publishing.
	Events EventsConfig `mapstructure:"events"`

	// Metrics is the Prometheus configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the OpenTelemetry configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the admin HTTP server configuration.
type ServerConfig struct {
	// Enabled starts the admin API.
	Enabled bool `mapstructure:"enabled"`

	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RequestTimeout bounds a single API request. Zero disables it.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=0"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes" validate:"min=0"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int `mapstructure:"max_age" validate:"min=0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// ManagerConfig holds saga manager settings.
type ManagerConfig struct {
	// MonitorPeriod is how often the active saga list is reported. Zero disables the monitor.
	MonitorPeriod time.Duration `mapstructure:"monitor_period" validate:"min=0"`

	// StopTimeout is how long Stop waits for running sagas before cancelling them.
	StopTimeout time.Duration `mapstructure:"stop_timeout" validate:"min=0"`

	// ScheduleRate limits schedule admissions per second. Zero means unlimited.
	ScheduleRate float64 `mapstructure:"schedule_rate" validate:"min=0"`

	// ScheduleBurst is the admission burst when ScheduleRate is set.
	ScheduleBurst int `mapstructure:"schedule_burst" validate:"min=0"`

	// BlockingWorkers sizes the pool that runs blocking steps.
	BlockingWorkers int `mapstructure:"blocking_workers" validate:"min=1"`

	// History is how many finished sagas stay visible in the API.
	History int `mapstructure:"history" validate:"min=0"`
}

// Options converts the manager settings to saga manager options.
func (c ManagerConfig) Options() []saga.ManagerOption {
	opts := []saga.ManagerOption{
		saga.WithBlockingWorkers(c.BlockingWorkers),
		saga.WithHistory(c.History),
	}
	if c.StopTimeout > 0 {
		opts = append(opts, saga.WithStopTimeout(c.StopTimeout))
	}
	if c.ScheduleRate > 0 {
		opts = append(opts, saga.WithScheduleRate(c.ScheduleRate, c.ScheduleBurst))
	}
	return opts
}

// RetryConfig is the default step retry policy.
type RetryConfig struct {
	// Attempts counts retries after the first run.
	Attempts int `mapstructure:"attempts" validate:"min=0"`

	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration `mapstructure:"base_delay" validate:"min=0"`

	// Scale multiplies the delay after every retry.
	Scale float64 `mapstructure:"scale" validate:"min=0"`
}

// Policy returns the retry settings as a saga.RetryPolicy.
func (c RetryConfig) Policy() saga.RetryPolicy {
	return saga.RetryPolicy{Attempts: c.Attempts, BaseDelay: c.BaseDelay, Scale: c.Scale}
}

// Storage backends.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageBadger = "badger"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
)

// StorageConfig holds snapshot persistence settings.
type StorageConfig struct {
	// Type is the storage backend (memory, file, badger, redis, sqlite).
	Type string `mapstructure:"type" validate:"oneof=memory file badger redis sqlite"`

	File   FileConfig   `mapstructure:"file"`
	Badger BadgerConfig `mapstructure:"badger"`
	Redis  RedisConfig  `mapstructure:"redis"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// FileConfig holds settings of the JSON document store.
type FileConfig struct {
	// Path is the snapshot document path.
	Path string `mapstructure:"path"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size" validate:"min=0"`

	// NumVersionsToKeep is the number of versions to keep per key.
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep" validate:"min=0"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0"`

	// Key is the hash holding the snapshots.
	Key string `mapstructure:"key"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	// DSN is the database file or URI.
	DSN string `mapstructure:"dsn"`

	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration `mapstructure:"busy_timeout" validate:"min=0"`
}

// Event transports.
const (
	EventsNone   = "none"
	EventsMemory = "memory"
	EventsNATS   = "nats"
)

// EventsConfig holds lifecycle event settings.
type EventsConfig struct {
	// Type is the event transport (none, memory, nats).
	Type string `mapstructure:"type" validate:"oneof=none memory nats"`

	// SubjectPrefix is prepended to every event subject.
	SubjectPrefix string `mapstructure:"subject_prefix"`

	// IncludeResults adds committed step results to every event.
	IncludeResults bool `mapstructure:"include_results"`

	NATS   NATSConfig       `mapstructure:"nats"`
	Retry  EventRetryConfig `mapstructure:"retry"`
	Stream StreamConfig     `mapstructure:"stream"`
}

// StreamConfig controls the websocket event stream served at
// /api/v1/events. It only runs when an event transport is configured.
type StreamConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	MaxConnections int           `mapstructure:"max_connections" validate:"min=0"`
	PingInterval   time.Duration `mapstructure:"ping_interval" validate:"min=0"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout" validate:"min=0"`
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" validate:"min=0"`
	FlushTimeout  time.Duration `mapstructure:"flush_timeout" validate:"min=0"`
}

// EventRetryConfig controls publish retries.
type EventRetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries" validate:"min=0"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"min=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" validate:"min=0"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port. The admin API also serves Path.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the span exporter (otlpgrpc).
	Exporter string `mapstructure:"exporter" validate:"oneof=otlpgrpc"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Timeout bounds a single export.
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`

	// Headers are sent with every export.
	Headers map[string]string `mapstructure:"headers"`

	// Sampler is always_on, always_off or parentbased_traceidratio.
	Sampler string `mapstructure:"sampler" validate:"oneof=always_on always_off parentbased_traceidratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s, Storage: %s, Events: %s}",
		c.App.Name, c.Server.Port, c.App.Environment, c.Storage.Type, c.Events.Type)
}
