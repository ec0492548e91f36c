package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/orsa-go/orsa/pkg/saga"
)

// StoreTestSuite defines a test suite that can be run against any Store implementation.
type StoreTestSuite struct {
	NewStore func(t *testing.T) Store
}

// RunAllTests runs all storage tests against the provided store implementation.
func (s *StoreTestSuite) RunAllTests(t *testing.T) {
	t.Run("SaveGetDelete", s.TestSaveGetDelete)
	t.Run("SaveReplaces", s.TestSaveReplaces)
	t.Run("ListOrdering", s.TestListOrdering)
	t.Run("ValueRoundTrip", s.TestValueRoundTrip)
	t.Run("InvalidSnapshot", s.TestInvalidSnapshot)
	t.Run("DeleteMissing", s.TestDeleteMissing)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
	t.Run("NotFound", s.TestNotFound)
}

func testSnapshot(uid string, at time.Time) *saga.Snapshot {
	return &saga.Snapshot{
		UID:              uid,
		Args:             []any{45.0, "EUR"},
		Kwargs:           map[string]any{"to": "USD"},
		SourceModule:     "github.com/orsa-go/orsa/examples/exchange",
		SourceEntryPoint: "exchange",
		SourceFile:       "main.go",
		Results:          map[string]any{"A": 10.0},
		UpdatedAt:        at,
	}
}

// TestSaveGetDelete tests the basic snapshot lifecycle.
func (s *StoreTestSuite) TestSaveGetDelete(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	snap := testSnapshot("saga-1", time.Now().UTC())
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "saga-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UID != snap.UID || got.SourceEntryPoint != snap.SourceEntryPoint {
		t.Errorf("unexpected snapshot %+v", got)
	}
	if got.SourceModule != snap.SourceModule || got.SourceFile != snap.SourceFile {
		t.Errorf("source locator not preserved: %+v", got)
	}

	if err := store.Delete(ctx, "saga-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "saga-1"); err == nil {
		t.Error("expected error when getting deleted snapshot")
	}
}

// TestSaveReplaces tests that a later save with the same UID replaces the earlier one.
func (s *StoreTestSuite) TestSaveReplaces(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	snap := testSnapshot("saga-1", time.Now().UTC())
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	snap.Results = map[string]any{"A": 10.0, "B": 15.0}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save (update) failed: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(all))
	}
	if len(all[0].Results) != 2 {
		t.Errorf("expected updated results, got %v", all[0].Results)
	}
}

// TestListOrdering tests that List returns snapshots oldest first.
func (s *StoreTestSuite) TestListOrdering(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, uid := range []string{"c", "a", "b"} {
		if err := store.Save(ctx, testSnapshot(uid, base.Add(time.Duration(2-i)*time.Minute))); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(all))
	}
	got := fmt.Sprintf("%s%s%s", all[0].UID, all[1].UID, all[2].UID)
	if got != "bac" {
		t.Errorf("expected order bac, got %s", got)
	}
}

// TestValueRoundTrip tests that call arguments and results survive persistence.
func (s *StoreTestSuite) TestValueRoundTrip(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	snap := testSnapshot("saga-rt", time.Now().UTC())
	snap.Results["order"] = map[string]any{"id": "o-1", "total": 12.5}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "saga-rt")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Args) != 2 || got.Args[0] != 45.0 || got.Args[1] != "EUR" {
		t.Errorf("unexpected args %v", got.Args)
	}
	if got.Kwargs["to"] != "USD" {
		t.Errorf("unexpected kwargs %v", got.Kwargs)
	}
	order, ok := got.Results["order"].(map[string]any)
	if !ok || order["id"] != "o-1" || order["total"] != 12.5 {
		t.Errorf("unexpected results %v", got.Results)
	}
}

// TestInvalidSnapshot tests that snapshots without identity are rejected.
func (s *StoreTestSuite) TestInvalidSnapshot(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.Save(ctx, nil); err == nil {
		t.Error("expected error when saving nil snapshot")
	}
	if err := store.Save(ctx, &saga.Snapshot{SourceEntryPoint: "exchange"}); err == nil {
		t.Error("expected error when saving snapshot without uid")
	}
}

// TestDeleteMissing tests that deleting an unknown uid succeeds.
func (s *StoreTestSuite) TestDeleteMissing(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()

	if err := store.Delete(context.Background(), "never-saved"); err != nil {
		t.Errorf("Delete of missing snapshot failed: %v", err)
	}
}

// TestConcurrentAccess tests concurrent read/write operations.
func (s *StoreTestSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			uid := fmt.Sprintf("saga-%d", idx)
			if err := store.Save(ctx, testSnapshot(uid, time.Now().UTC())); err != nil {
				errs <- err
				return
			}
			if _, err := store.Get(ctx, uid); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 10 {
		t.Errorf("expected 10 snapshots, got %d", len(all))
	}
}

// TestNotFound tests NotFoundError for missing snapshots.
func (s *StoreTestSuite) TestNotFound(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()

	_, err := store.Get(context.Background(), "missing")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.UID != "missing" {
		t.Errorf("expected uid missing, got %s", notFound.UID)
	}
}
