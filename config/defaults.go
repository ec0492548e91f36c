package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "orsa",
			Version:     "dev",
			Environment: "development",
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 10 * time.Second,
				RequestTimeout:  15 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
			},
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
				ExposedHeaders: []string{"X-Request-ID"},
				MaxAge:         300,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Manager: ManagerConfig{
			MonitorPeriod:   time.Minute,
			StopTimeout:     30 * time.Second,
			ScheduleRate:    0,
			ScheduleBurst:   1,
			BlockingWorkers: 16,
			History:         100,
		},
		Retry: RetryConfig{
			Attempts:  0,
			BaseDelay: 3 * time.Second,
			Scale:     1.0,
		},
		Storage: StorageConfig{
			Type: StorageMemory,
			File: FileConfig{
				Path: "./data/snapshots.json",
			},
			Badger: BadgerConfig{
				Path:              "./data/badger",
				SyncWrites:        true,
				ValueLogFileSize:  1 << 28, // 256MB
				NumVersionsToKeep: 1,
			},
			Redis: RedisConfig{
				Address: "localhost:6379",
				Key:     "orsa:snapshots",
			},
			SQLite: SQLiteConfig{
				DSN:         "./data/orsa.db",
				BusyTimeout: 5 * time.Second,
			},
		},
		Events: EventsConfig{
			Type:          EventsNone,
			SubjectPrefix: "orsa.v1.saga",
			NATS: NATSConfig{
				URL:           "nats://127.0.0.1:4222",
				Name:          "orsa",
				MaxReconnects: 60,
				ReconnectWait: 2 * time.Second,
			},
			Retry: EventRetryConfig{
				MaxRetries:     3,
				InitialBackoff: 50 * time.Millisecond,
				MaxBackoff:     2 * time.Second,
			},
			Stream: StreamConfig{
				Enabled:        true,
				MaxConnections: 100,
				PingInterval:   30 * time.Second,
				PongTimeout:    10 * time.Second,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlpgrpc",
			Endpoint:   "localhost:4317",
			Timeout:    5 * time.Second,
			Sampler:    "parentbased_traceidratio",
			SampleRate: 0.1,
		},
	}
}
