// Package redis provides a Redis-backed snapshot store. Every snapshot is a
// field of one hash keyed by saga UID.
package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/orsa-go/orsa/pkg/saga"
	"github.com/orsa-go/orsa/pkg/storage"
)

const backend = "redis"

// DefaultKey is the hash that holds snapshots when Config.Key is empty.
const DefaultKey = "orsa:snapshots"

// Config holds configuration for RedisStorage.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisStorage implements storage.Store on a Redis hash.
type RedisStorage struct {
	client redis.UniversalClient
	key    string
	owned  bool
}

// NewRedisStorage connects to Redis and verifies the connection.
func NewRedisStorage(ctx context.Context, cfg *Config) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	s := NewWithClient(client, cfg.Key)
	s.owned = true
	return s, nil
}

// NewWithClient wraps an existing client. Close leaves the client open.
func NewWithClient(client redis.UniversalClient, key string) *RedisStorage {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStorage{client: client, key: key}
}

// Save writes the snapshot into the hash.
func (r *RedisStorage) Save(ctx context.Context, snap *saga.Snapshot) error {
	data, err := storage.Encode(snap)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.key, snap.UID, data).Err(); err != nil {
		return &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	return nil
}

// Get retrieves a snapshot by UID.
func (r *RedisStorage) Get(ctx context.Context, uid string) (*saga.Snapshot, error) {
	data, err := r.client.HGet(ctx, r.key, uid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &storage.NotFoundError{UID: uid}
	}
	if err != nil {
		return nil, &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	return storage.Decode(uid, data)
}

// Delete removes a snapshot from the hash.
func (r *RedisStorage) Delete(ctx context.Context, uid string) error {
	if err := r.client.HDel(ctx, r.key, uid).Err(); err != nil {
		return &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	return nil
}

// List returns every snapshot in the hash.
func (r *RedisStorage) List(ctx context.Context) ([]*saga.Snapshot, error) {
	entries, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}

	snaps := make([]*saga.Snapshot, 0, len(entries))
	for uid, data := range entries {
		snap, err := storage.Decode(uid, []byte(data))
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	storage.SortSnapshots(snaps)
	return snaps, nil
}

// Close closes the client when the store created it.
func (r *RedisStorage) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
