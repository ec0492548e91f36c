package redis

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/orsa-go/orsa/pkg/saga"
	"github.com/orsa-go/orsa/pkg/storage"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisStorageSuite(t *testing.T) {
	suite := &storage.StoreTestSuite{
		NewStore: func(t *testing.T) storage.Store {
			_, rdb := newTestRedis(t)
			return NewWithClient(rdb, "")
		},
	}

	suite.RunAllTests(t)
}

func TestRedisStorage_UsesHash(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewWithClient(rdb, "test:snapshots")

	snap := &saga.Snapshot{UID: "u-1", SourceEntryPoint: "exchange"}
	if err := s.Save(context.Background(), snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := mr.HKeys("test:snapshots")
	if err != nil {
		t.Fatalf("HKeys failed: %v", err)
	}
	if len(got) != 1 || got[0] != "u-1" {
		t.Fatalf("hash fields = %v", got)
	}
	if mr.Exists(DefaultKey) {
		t.Fatal("default key written despite explicit key")
	}
}

func TestNewRedisStorage(t *testing.T) {
	mr, _ := newTestRedis(t)

	s, err := NewRedisStorage(context.Background(), &Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisStorage failed: %v", err)
	}
	if err := s.Save(context.Background(), &saga.Snapshot{UID: "u-1", SourceEntryPoint: "exchange"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestRedisStorage_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	s := NewWithClient(rdb, "")
	mr.Close()

	_, err = s.List(context.Background())
	var unavailable *storage.StorageUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected StorageUnavailableError, got %v", err)
	}
}
