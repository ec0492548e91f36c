// Package memory provides an in-memory implementation of the snapshot store.
package memory

import (
	"context"
	"sync"

	"github.com/orsa-go/orsa/pkg/saga"
	"github.com/orsa-go/orsa/pkg/storage"
)

// MemoryStorage implements storage.Store using an in-memory map. Snapshots are
// kept in their encoded form so callers observe the same values a durable
// backend would hand back.
type MemoryStorage struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{snapshots: make(map[string][]byte)}
}

// Save stores snap, replacing any earlier snapshot with the same UID.
func (m *MemoryStorage) Save(ctx context.Context, snap *saga.Snapshot) error {
	data, err := storage.Encode(snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.UID] = data
	return nil
}

// Get retrieves a snapshot by UID.
func (m *MemoryStorage) Get(ctx context.Context, uid string) (*saga.Snapshot, error) {
	m.mu.RLock()
	data, exists := m.snapshots[uid]
	m.mu.RUnlock()

	if !exists {
		return nil, &storage.NotFoundError{UID: uid}
	}
	return storage.Decode(uid, data)
}

// Delete removes a snapshot.
func (m *MemoryStorage) Delete(ctx context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, uid)
	return nil
}

// List returns every stored snapshot.
func (m *MemoryStorage) List(ctx context.Context) ([]*saga.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*saga.Snapshot, 0, len(m.snapshots))
	for uid, data := range m.snapshots {
		snap, err := storage.Decode(uid, data)
		if err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	storage.SortSnapshots(result)
	return result, nil
}

// Len returns the number of stored snapshots.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}

// Close closes the storage (no-op for memory storage).
func (m *MemoryStorage) Close() error {
	return nil
}
