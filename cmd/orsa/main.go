// Command orsa runs the saga manager behind the admin API.
package main

//go:generate swag init -g main.go -d ./,../../pkg/api -o ../../docs/swagger --parseDependency

// @title Orsa API
// @version 1.0
// @description Saga orchestration engine admin API

// @contact.name API Support
// @contact.url https://github.com/orsa-go/orsa

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /
// @schemes http https

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orsa-go/orsa/config"
	"github.com/orsa-go/orsa/pkg/api"
	"github.com/orsa-go/orsa/pkg/api/handlers"
	"github.com/orsa-go/orsa/pkg/logger"
	"github.com/orsa-go/orsa/pkg/metrics"
	"github.com/orsa-go/orsa/pkg/saga"
	"github.com/orsa-go/orsa/pkg/storage"
	"github.com/orsa-go/orsa/pkg/telemetry/tracing"
	"github.com/orsa-go/orsa/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	watchFlag   = flag.Bool("watch", true, "Reload log level and retry policy when the config file changes")

	serverPort  = flag.Int("port", 0, "Override server port")
	logLevel    = flag.String("log-level", "", "Override log level")
	storageType = flag.String("storage", "", "Override storage backend")
	debugMode   = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(*configPath, buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "orsa: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := newLogger(cfg)
	logger.SetGlobal(log)
	defer log.Close()

	log.Info("starting orsa",
		"version", version.Version,
		"git_commit", version.GitCommit,
		"environment", cfg.App.Environment,
	)
	log.Debug("configuration loaded", "config", cfg.String())

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App, tracing.WithLogger(log))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), max(cfg.Tracing.Timeout, time.Second))
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	mm := metrics.NewManager(metricsConfig(cfg.Metrics))
	if mm.Enabled() {
		go func() {
			if err := mm.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Storage.Type, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("storage close failed", "error", err)
		}
	}()
	log.Info("snapshot storage ready", "backend", cfg.Storage.Type)

	publisher, bus, err := openPublisher(cfg.Events, mm, log)
	if err != nil {
		return fmt.Errorf("open %s events: %w", cfg.Events.Type, err)
	}
	if publisher != nil {
		defer publisher.Close()
	}

	setStepRetry(cfg.Retry.Policy())
	if err := registerDemo(saga.DefaultRegistry); err != nil {
		return err
	}

	opts := append(cfg.Manager.Options(),
		saga.WithLogger(log),
		saga.WithMetrics(mm),
		saga.WithRegistry(saga.DefaultRegistry),
	)
	manager := saga.NewManager(opts...)
	persistence := storage.NewPersistence(store, cfg.Storage.Type,
		storage.WithWriteRecorder(mm),
		storage.WithPersistenceLogger(log),
	)
	installHooks(manager, persistence, publisher)
	if cfg.Manager.MonitorPeriod > 0 {
		manager.OnMonitor(func(ctx context.Context, _ *saga.Manager, active []string) {
			log.InfoContext(ctx, "active sagas", "count", len(active), "tasks", active)
		}, cfg.Manager.MonitorPeriod)
	}

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start saga manager: %w", err)
	}

	if *configPath != "" && *watchFlag {
		stopWatch, err := watchConfig(ctx, *configPath, cfg, log)
		if err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else {
			defer stopWatch()
		}
	}

	var server *api.HTTPServer
	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		h := &api.Handlers{
			Saga:   handlers.NewSagaHandler(manager, store, log),
			Health: handlers.NewHealthHandler(manager, cfg.Storage.Type),
		}
		if stream := newEventStream(bus, cfg, log); stream != nil {
			h.Events = stream
			defer stream.Close()
		}
		if mm.Enabled() {
			h.Metrics = mm
			h.MetricsHandler = mm.Handler()
		}
		server = api.NewHTTPServer(cfg, log, h)
		go func() { serverErr <- server.Start() }()
	}

	log.Info("orsa is running",
		"http", server != nil,
		"port", cfg.Server.Port,
		"declarations", manager.Registry().Keys(),
	)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			runErr = err
			log.Error("admin api failed", "error", err)
		}
	case <-manager.Done():
		log.Warn("saga manager stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout+cfg.Manager.StopTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("admin api shutdown failed", "error", err)
		}
	}
	if err := manager.Stop(shutdownCtx); err != nil && !errors.Is(err, saga.ErrManagerStopped) {
		runErr = errors.Join(runErr, fmt.Errorf("stop saga manager: %w", err))
	}

	log.Info("orsa stopped")
	return runErr
}

func newLogger(cfg *config.Config) logger.Logger {
	level := logger.ParseLevel(cfg.Log.Level)
	if cfg.App.Debug {
		level = logger.DebugLevel
	}
	return logger.New(&logger.Config{
		Level:  level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// watchConfig applies log level and step retry changes from the config file.
func watchConfig(ctx context.Context, path string, current *config.Config, log logger.Logger) (func(), error) {
	w, err := config.NewWatcher(path, config.NewLoader(), config.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}

	applied := config.ExtractHotReloadable(current)
	updates := make(chan config.HotReloadableConfig, 1)
	w.OnChange(func(cfg *config.Config) {
		select {
		case updates <- config.ExtractHotReloadable(cfg):
		case <-ctx.Done():
		}
	})

	go func() {
		if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("config watcher stopped", "error", err)
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case next := <-updates:
				if !next.Changed(applied) {
					continue
				}
				if next.LogLevel != applied.LogLevel {
					log.SetLevel(logger.ParseLevel(next.LogLevel))
				}
				setStepRetry(next.Retry.Policy())
				log.Info("hot reload applied", "log_level", next.LogLevel, "retry_attempts", next.Retry.Attempts)
				applied = next
			}
		}
	}()

	return func() { _ = w.Stop() }, nil
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})
	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *storageType != "" {
		overrides["storage.type"] = *storageType
	}
	if *debugMode {
		overrides["app.debug"] = true
	}
	return overrides
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "orsa - saga orchestration service\n\n")
	fmt.Fprintf(out, "Usage: orsa [options]\n\n")
	flag.PrintDefaults()
	fmt.Fprintf(out, "\nExamples:\n")
	fmt.Fprintf(out, "  orsa -config orsa.yaml\n")
	fmt.Fprintf(out, "  orsa -storage sqlite -log-level debug\n")
	fmt.Fprintf(out, "  ORSA_EVENTS_TYPE=nats orsa\n")
}
