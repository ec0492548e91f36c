// Package storage persists saga snapshots so unfinished sagas can be resumed
// after a restart.
package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/orsa-go/orsa/pkg/saga"
)

// Store defines the snapshot persistence operations every backend provides.
// List satisfies saga.SnapshotLister.
type Store interface {
	// Save inserts or replaces the snapshot keyed by its UID.
	Save(ctx context.Context, snap *saga.Snapshot) error
	// Get returns the snapshot for uid or a *NotFoundError.
	Get(ctx context.Context, uid string) (*saga.Snapshot, error)
	// Delete removes the snapshot for uid. Deleting a missing uid is not an error.
	Delete(ctx context.Context, uid string) error
	// List returns every stored snapshot ordered by UpdatedAt, then UID.
	List(ctx context.Context) ([]*saga.Snapshot, error)

	Close() error
}

var _ saga.SnapshotLister = Store(nil)

// NotFoundError indicates that the requested snapshot was not found.
type NotFoundError struct {
	UID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("snapshot not found: %s", e.UID)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Backend string
	Cause   error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("%s storage unavailable: %v", e.Backend, e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// SerializationError indicates a failure in snapshot serialization/deserialization.
type SerializationError struct {
	Operation string
	UID       string
	Cause     error
}

func (e *SerializationError) Error() string {
	if e.UID == "" {
		return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("serialization error during %s of %s: %v", e.Operation, e.UID, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// Encode serializes a snapshot for backends that store raw bytes.
func Encode(snap *saga.Snapshot) ([]byte, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	data, err := saga.SerializeSnapshot(snap)
	if err != nil {
		return nil, &SerializationError{Operation: "marshal", UID: snap.UID, Cause: err}
	}
	return data, nil
}

// Decode is the inverse of Encode.
func Decode(uid string, data []byte) (*saga.Snapshot, error) {
	snap, err := saga.DeserializeSnapshot(data)
	if err != nil {
		return nil, &SerializationError{Operation: "unmarshal", UID: uid, Cause: err}
	}
	return snap, nil
}

// SortSnapshots orders snapshots oldest first, breaking ties by UID.
func SortSnapshots(snaps []*saga.Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		a, b := snaps[i], snaps[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.UID < b.UID
	})
}
