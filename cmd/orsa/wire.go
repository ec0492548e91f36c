package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/orsa-go/orsa/config"
	"github.com/orsa-go/orsa/pkg/api/handlers"
	"github.com/orsa-go/orsa/pkg/events"
	"github.com/orsa-go/orsa/pkg/logger"
	"github.com/orsa-go/orsa/pkg/metrics"
	"github.com/orsa-go/orsa/pkg/saga"
	"github.com/orsa-go/orsa/pkg/storage"
	"github.com/orsa-go/orsa/pkg/storage/badger"
	"github.com/orsa-go/orsa/pkg/storage/file"
	"github.com/orsa-go/orsa/pkg/storage/memory"
	"github.com/orsa-go/orsa/pkg/storage/redis"
	"github.com/orsa-go/orsa/pkg/storage/sqlite"
)

// openStore opens the snapshot backend selected by cfg.Type.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case config.StorageMemory:
		return memory.NewMemoryStorage(), nil
	case config.StorageFile:
		return file.NewFileStorage(cfg.File.Path)
	case config.StorageBadger:
		return badger.NewBadgerStorage(&badger.Config{
			Path:              cfg.Badger.Path,
			SyncWrites:        cfg.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Badger.NumVersionsToKeep,
		})
	case config.StorageRedis:
		return redis.NewRedisStorage(ctx, &redis.Config{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
	case config.StorageSQLite:
		return sqlite.NewSQLiteStorage(ctx, &sqlite.Config{
			DSN:         cfg.SQLite.DSN,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// openPublisher returns nil when lifecycle events are disabled. The returned
// bus sees every published event: it is the transport in memory mode and a
// local mirror of NATS otherwise.
func openPublisher(cfg config.EventsConfig, mm *metrics.Manager, log logger.Logger) (*events.Publisher, *events.MemoryBus, error) {
	bus := events.NewMemoryBus()
	var transport events.Transport
	switch cfg.Type {
	case config.EventsNone, "":
		return nil, nil, nil
	case config.EventsMemory:
		transport = bus
	case config.EventsNATS:
		t, err := events.NewNATSTransport(events.NATSConfig{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			FlushTimeout:  cfg.NATS.FlushTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		transport = events.NewTee(t, bus)
	default:
		return nil, nil, fmt.Errorf("unknown events type %q", cfg.Type)
	}

	opts := []events.PublisherOption{
		events.WithSubjectPrefix(cfg.SubjectPrefix),
		events.WithRetry(events.RetryConfig{
			MaxRetries:     cfg.Retry.MaxRetries,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		}),
		events.WithTelemetry(mm),
		events.WithLogger(log),
	}
	if cfg.IncludeResults {
		opts = append(opts, events.WithResults())
	}
	p, err := events.NewPublisher(transport, opts...)
	if err != nil {
		_ = transport.Close()
		return nil, nil, err
	}
	return p, bus, nil
}

// newEventStream returns nil when there is no bus or the stream is disabled.
func newEventStream(bus *events.MemoryBus, cfg *config.Config, log logger.Logger) *handlers.EventStreamHandler {
	if bus == nil || !cfg.Events.Stream.Enabled {
		return nil
	}
	var origins []string
	if cfg.Server.CORS.Enabled {
		origins = cfg.Server.CORS.AllowedOrigins
	}
	return handlers.NewEventStreamHandler(bus, log, handlers.EventStreamConfig{
		SubjectPrefix:  cfg.Events.SubjectPrefix,
		AllowedOrigins: origins,
		MaxConnections: cfg.Events.Stream.MaxConnections,
		PingInterval:   cfg.Events.Stream.PingInterval,
		PongTimeout:    cfg.Events.Stream.PongTimeout,
	})
}

// installHooks registers persistence and event publishing on m. Both may be
// nil. Persistence runs first so a snapshot exists before its commit event is
// visible to subscribers.
func installHooks(m *saga.Manager, p *storage.Persistence, pub *events.Publisher) {
	m.OnSagaStore(func(ctx context.Context, m *saga.Manager, e *saga.Engine) error {
		var errs []error
		if p != nil {
			errs = append(errs, p.SaveHook(ctx, m, e))
		}
		if pub != nil {
			errs = append(errs, pub.CommittedHook(ctx, m, e))
		}
		return errors.Join(errs...)
	})
	m.OnSagaComplete(func(ctx context.Context, m *saga.Manager, e *saga.Engine) error {
		var errs []error
		if p != nil {
			errs = append(errs, p.CompleteHook(ctx, m, e))
		}
		if pub != nil {
			errs = append(errs, pub.CompletedHook(ctx, m, e))
		}
		return errors.Join(errs...)
	})
	m.OnSagaAbort(func(ctx context.Context, m *saga.Manager, e *saga.Engine, cause error) error {
		var errs []error
		if p != nil {
			errs = append(errs, p.AbortHook(ctx, m, e, cause))
		}
		if pub != nil {
			errs = append(errs, pub.AbortedHook(ctx, m, e, cause))
		}
		return errors.Join(errs...)
	})
	if p != nil {
		// An unreadable store stops startup; snapshots that fail to restore
		// were already logged by RestoreAll and stay in the store.
		m.OnStartup(func(ctx context.Context, m *saga.Manager) error {
			_, err := p.RestoreAll(ctx, m)
			var restoreErr *saga.RestoreError
			if errors.As(err, &restoreErr) {
				return nil
			}
			return err
		})
	}
}

func metricsConfig(cfg config.MetricsConfig) metrics.Config {
	mc := metrics.DefaultConfig()
	mc.Enabled = cfg.Enabled
	mc.Port = cfg.Port
	mc.Path = cfg.Path
	return mc
}
