package badger

import (
	"context"
	"testing"
	"time"

	"github.com/orsa-go/orsa/pkg/saga"
	"github.com/orsa-go/orsa/pkg/storage"
)

// TestBadgerStorageSuite runs the full storage test suite against BadgerStorage.
func TestBadgerStorageSuite(t *testing.T) {
	suite := &storage.StoreTestSuite{
		NewStore: func(t *testing.T) storage.Store {
			return setupTestDB(t, t.TempDir())
		},
	}

	suite.RunAllTests(t)
}

func setupTestDB(t *testing.T, dir string) *BadgerStorage {
	t.Helper()
	config := &Config{
		Path:              dir,
		SyncWrites:        false,   // Faster for tests
		ValueLogFileSize:  1 << 20, // 1MB
		NumVersionsToKeep: 1,
	}

	db, err := NewBadgerStorage(config)
	if err != nil {
		t.Fatalf("Failed to create BadgerStorage: %v", err)
	}
	return db
}

func TestBadgerStorage_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db := setupTestDB(t, dir)
	snap := &saga.Snapshot{
		UID:              "saga-1",
		Args:             []any{45.0},
		SourceEntryPoint: "exchange",
		Results:          map[string]any{"A": 10.0},
		UpdatedAt:        time.Now().UTC(),
	}
	if err := db.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := setupTestDB(t, dir)
	defer reopened.Close()

	all, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 || all[0].UID != "saga-1" || all[0].Results["A"] != 10.0 {
		t.Fatalf("unexpected snapshots after reopen: %+v", all)
	}
}

func TestBadgerStorage_InMemory(t *testing.T) {
	db, err := NewBadgerStorage(&Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create in-memory BadgerStorage: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Save(ctx, &saga.Snapshot{UID: "x", SourceEntryPoint: "exchange"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := db.Get(ctx, "x"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
}

func TestBadgerStorage_CancelledContext(t *testing.T) {
	db := setupTestDB(t, t.TempDir())
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := db.Save(ctx, &saga.Snapshot{UID: "x", SourceEntryPoint: "exchange"}); err == nil {
		t.Fatal("expected Save to fail with a cancelled context")
	}
}
