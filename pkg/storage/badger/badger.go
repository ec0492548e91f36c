// Package badger provides a Badger-based implementation of the snapshot store.
package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/orsa-go/orsa/pkg/saga"
	"github.com/orsa-go/orsa/pkg/storage"
)

const backend = "badger"

var snapshotPrefix = []byte("snapshot:")

// Config holds configuration for BadgerStorage.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
	// InMemory runs Badger without touching disk. Path is ignored.
	InMemory bool
}

// BadgerStorage implements storage.Store using Badger.
type BadgerStorage struct {
	db     *badger.DB
	config *Config
}

// NewBadgerStorage creates a new Badger storage instance.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(config.Path)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}

	return &BadgerStorage{
		db:     db,
		config: config,
	}, nil
}

func snapshotKey(uid string) []byte {
	key := make([]byte, 0, len(snapshotPrefix)+len(uid))
	key = append(key, snapshotPrefix...)
	return append(key, uid...)
}

// Save writes a snapshot to Badger.
func (b *BadgerStorage) Save(ctx context.Context, snap *saga.Snapshot) error {
	data, err := storage.Encode(snap)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.UID), data)
	})
}

// Get retrieves a snapshot by UID.
func (b *BadgerStorage) Get(ctx context.Context, uid string) (*saga.Snapshot, error) {
	var snap *saga.Snapshot

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(uid))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &storage.NotFoundError{UID: uid}
			}
			return err
		}

		return item.Value(func(val []byte) error {
			decoded, err := storage.Decode(uid, val)
			if err != nil {
				return err
			}
			snap = decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

// Delete removes a snapshot.
func (b *BadgerStorage) Delete(ctx context.Context, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(snapshotKey(uid))
	})
}

// List scans every snapshot key.
func (b *BadgerStorage) List(ctx context.Context) ([]*saga.Snapshot, error) {
	var snaps []*saga.Snapshot

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = snapshotPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			uid := string(item.Key()[len(snapshotPrefix):])

			err := item.Value(func(val []byte) error {
				snap, err := storage.Decode(uid, val)
				if err != nil {
					return err
				}
				snaps = append(snaps, snap)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	storage.SortSnapshots(snaps)
	return snaps, nil
}

// Close closes the Badger database.
func (b *BadgerStorage) Close() error {
	return b.db.Close()
}
