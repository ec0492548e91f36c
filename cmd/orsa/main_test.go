package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orsa-go/orsa/config"
	"github.com/orsa-go/orsa/pkg/events"
	"github.com/orsa-go/orsa/pkg/logger"
	"github.com/orsa-go/orsa/pkg/metrics"
	"github.com/orsa-go/orsa/pkg/saga"
	"github.com/orsa-go/orsa/pkg/storage"
	"github.com/orsa-go/orsa/pkg/storage/memory"
)

func TestOpenStore(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.StorageConfig
	}{
		{"memory", config.StorageConfig{Type: config.StorageMemory}},
		{"file", config.StorageConfig{Type: config.StorageFile, File: config.FileConfig{Path: filepath.Join(dir, "snapshots.json")}}},
		{"badger", config.StorageConfig{Type: config.StorageBadger, Badger: config.BadgerConfig{Path: filepath.Join(dir, "badger")}}},
		{"sqlite", config.StorageConfig{Type: config.StorageSQLite, SQLite: config.SQLiteConfig{DSN: filepath.Join(dir, "orsa.db")}}},
		{"redis", config.StorageConfig{Type: config.StorageRedis, Redis: config.RedisConfig{Address: mr.Addr(), Key: "orsa:test"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, err := openStore(ctx, tt.cfg)
			require.NoError(t, err)
			defer store.Close()

			snap := &saga.Snapshot{UID: "s-1", SourceEntryPoint: "exchange", Results: map[string]any{}, UpdatedAt: time.Now().UTC()}
			require.NoError(t, store.Save(ctx, snap))
			got, err := store.Get(ctx, "s-1")
			require.NoError(t, err)
			assert.Equal(t, "exchange", got.SourceEntryPoint)
		})
	}

	_, err := openStore(context.Background(), config.StorageConfig{Type: "etcd"})
	assert.Error(t, err)
}

func TestOpenPublisher(t *testing.T) {
	mm := metrics.NoOpManager()

	p, bus, err := openPublisher(config.EventsConfig{Type: config.EventsNone}, mm, logger.Discard())
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Nil(t, bus)

	cfg := config.DefaultConfig().Events
	cfg.Type = config.EventsMemory
	p, bus, err = openPublisher(cfg, mm, logger.Discard())
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, bus)
	assert.Equal(t, cfg.SubjectPrefix, p.Prefix())

	sub, err := bus.Subscribe(events.WildcardSubject(cfg.SubjectPrefix), 4)
	require.NoError(t, err)
	defer sub.Close()
	_, err = p.Publish(context.Background(), events.BuildEnvelopeInput{
		EventType: events.EventCompleted, Saga: "order", UID: "o-1", Sequence: 1,
	})
	require.NoError(t, err)
	select {
	case msg := <-sub.C():
		assert.Equal(t, events.Subject(cfg.SubjectPrefix, "order", events.EventCompleted), msg.Subject)
	case <-time.After(time.Second):
		t.Fatal("bus did not see the published event")
	}
	assert.NoError(t, p.Close())

	_, _, err = openPublisher(config.EventsConfig{Type: "kafka"}, mm, logger.Discard())
	assert.Error(t, err)
}

func TestNewEventStream(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Nil(t, newEventStream(nil, cfg, logger.Discard()))

	bus := events.NewMemoryBus()
	stream := newEventStream(bus, cfg, logger.Discard())
	require.NotNil(t, stream)
	assert.Equal(t, 0, stream.Count())

	cfg.Events.Stream.Enabled = false
	assert.Nil(t, newEventStream(bus, cfg, logger.Discard()))
}

type fixture struct {
	manager *saga.Manager
	store   *memory.MemoryStorage
	sub     *events.Subscription
}

func newFixture(t *testing.T, seed ...*saga.Snapshot) *fixture {
	t.Helper()

	registry := saga.NewRegistry()
	require.NoError(t, registerDemo(registry))

	store := memory.NewMemoryStorage()
	for _, snap := range seed {
		require.NoError(t, store.Save(context.Background(), snap))
	}

	bus := events.NewMemoryBus()
	sub, err := bus.Subscribe(events.WildcardSubject("demo"), 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	pub, err := events.NewPublisher(bus, events.WithSubjectPrefix("demo"), events.WithLogger(logger.Discard()))
	require.NoError(t, err)

	m := saga.NewManager(
		saga.WithLogger(logger.Discard()),
		saga.WithRegistry(registry),
		saga.WithStopTimeout(time.Second),
	)
	installHooks(m, storage.NewPersistence(store, config.StorageMemory, storage.WithPersistenceLogger(logger.Discard())), pub)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return &fixture{manager: m, store: store, sub: sub}
}

func (f *fixture) run(t *testing.T, key string, args saga.Args) (*saga.Engine, error) {
	t.Helper()
	decl, ok := f.manager.Registry().Lookup(key)
	require.True(t, ok)
	h, err := f.manager.Schedule(context.Background(), saga.NewEngine(decl, args, saga.WithEngineLogger(logger.Discard())))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.Engine(), h.Wait(ctx)
}

func (f *fixture) eventTypes(t *testing.T, n int) []string {
	t.Helper()
	var out []string
	for len(out) < n {
		select {
		case msg := <-f.sub.C():
			env, err := events.DecodeEnvelope(msg.Payload)
			require.NoError(t, err)
			out = append(out, env.EventType+":"+env.Step)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %v, want %d events", out, n)
		}
	}
	return out
}

func TestExchangeCompletes(t *testing.T) {
	f := newFixture(t)

	e, err := f.run(t, "exchange", saga.Positional(10.0, "USD", "EUR"))
	require.NoError(t, err)
	assert.Equal(t, "9.00 EUR", e.Results()["deposit"])
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, []string{
		events.EventCommitted + ":withdraw",
		events.EventCommitted + ":convert",
		events.EventCommitted + ":deposit",
		events.EventCompleted + ":",
	}, f.eventTypes(t, 4))
}

func TestExchangeAboveLimitRollsBack(t *testing.T) {
	f := newFixture(t)

	e, err := f.run(t, "exchange", saga.Named(map[string]any{"amount": 5000.0, "from": "USD", "to": "EUR"}))
	require.ErrorIs(t, err, errExchangeLimit)
	assert.Equal(t, saga.StateFailed, e.State())
	assert.Empty(t, e.RollbackErrors())
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, []string{
		events.EventCommitted + ":withdraw",
		events.EventAborted + ":convert",
	}, f.eventTypes(t, 2))
}

func TestOrderReadinessRejectsBeforeSteps(t *testing.T) {
	f := newFixture(t)

	e, err := f.run(t, "order", saga.Positional("", 0))
	require.Error(t, err)
	assert.Equal(t, saga.StateFailed, e.State())
	assert.Empty(t, e.Results())
}

func TestOrderCompletesWithBlockingCharge(t *testing.T) {
	f := newFixture(t)

	e, err := f.run(t, "order", saga.Named(map[string]any{"sku": "book", "qty": 2}))
	require.NoError(t, err)
	assert.Contains(t, e.Results()["ship"], "shipped book x2")
}

func TestStartupRestoresPersistedOrder(t *testing.T) {
	snap := &saga.Snapshot{
		UID:              "order-7",
		Args:             []any{"lamp", 1.0},
		SourceEntryPoint: "order",
		Results:          map[string]any{"reserve": "lamp x1", "charge": "ch-fixed"},
		UpdatedAt:        time.Now().UTC(),
	}
	f := newFixture(t, snap)

	require.Eventually(t, func() bool {
		e, err := f.manager.Get("order-7")
		return err == nil && e.State() == saga.StateCompleted
	}, 5*time.Second, 10*time.Millisecond)

	e, err := f.manager.Get("order-7")
	require.NoError(t, err)
	assert.True(t, e.Restored())
	assert.Equal(t, "shipped lamp x1 (ch-fixed)", e.Results()["ship"])
	assert.Equal(t, 0, f.store.Len())
}

func TestStartupSkipsUnknownDeclaration(t *testing.T) {
	f := newFixture(t, &saga.Snapshot{
		UID:              "legacy-1",
		SourceEntryPoint: "legacy",
		Results:          map[string]any{},
		UpdatedAt:        time.Now().UTC(),
	})

	assert.True(t, f.manager.Running())
	assert.Equal(t, 1, f.store.Len())
}

func TestSetStepRetry(t *testing.T) {
	defer setStepRetry(saga.DefaultRetryPolicy())

	setStepRetry(config.RetryConfig{Attempts: 3, BaseDelay: time.Millisecond, Scale: 2}.Policy())
	assert.Equal(t, 3, currentRetry().Attempts)
	assert.Equal(t, 2*time.Millisecond, currentRetry().Delay(1))
}

func TestBuildOverrides(t *testing.T) {
	*serverPort, *logLevel, *storageType = 9000, "debug", "sqlite"
	defer func() { *serverPort, *logLevel, *storageType = 0, "", "" }()

	o := buildOverrides()
	assert.Equal(t, 9000, o["server.port"])
	assert.Equal(t, "debug", o["log.level"])
	assert.Equal(t, "sqlite", o["storage.type"])
	assert.NotContains(t, o, "app.debug")
}
