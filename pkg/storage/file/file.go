// Package file provides a snapshot store that keeps every snapshot in a single
// JSON document on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/orsa-go/orsa/pkg/saga"
	"github.com/orsa-go/orsa/pkg/storage"
)

const backend = "file"

// FileStorage implements storage.Store as a uid -> snapshot JSON object. Every
// write rewrites the document through a temporary file and a rename.
type FileStorage struct {
	mu   sync.Mutex
	path string
	perm os.FileMode
}

// NewFileStorage opens path, creating its directory if needed. An existing
// document must be readable.
func NewFileStorage(path string) (*FileStorage, error) {
	if path == "" {
		return nil, &storage.StorageUnavailableError{Backend: backend, Cause: errors.New("path cannot be empty")}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	f := &FileStorage{path: path, perm: 0o644}
	if _, err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the document location.
func (f *FileStorage) Path() string { return f.path }

func (f *FileStorage) load() (map[string]*saga.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]*saga.Snapshot{}, nil
	}
	if err != nil {
		return nil, &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	if len(data) == 0 {
		return map[string]*saga.Snapshot{}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &storage.SerializationError{Operation: "unmarshal", Cause: err}
	}
	snaps := make(map[string]*saga.Snapshot, len(raw))
	for uid, msg := range raw {
		snap, err := storage.Decode(uid, msg)
		if err != nil {
			return nil, err
		}
		snaps[uid] = snap
	}
	return snaps, nil
}

func (f *FileStorage) write(snaps map[string]*saga.Snapshot) error {
	data, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		return &storage.SerializationError{Operation: "marshal", Cause: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	if err := os.Chmod(tmpName, f.perm); err != nil {
		return &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return &storage.StorageUnavailableError{Backend: backend, Cause: fmt.Errorf("replace %s: %w", f.path, err)}
	}
	return nil
}

// Save stores snap in the document.
func (f *FileStorage) Save(ctx context.Context, snap *saga.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	snaps, err := f.load()
	if err != nil {
		return err
	}
	snaps[snap.UID] = snap
	return f.write(snaps)
}

// Get retrieves a snapshot by UID.
func (f *FileStorage) Get(ctx context.Context, uid string) (*saga.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snaps, err := f.load()
	if err != nil {
		return nil, err
	}
	snap, ok := snaps[uid]
	if !ok {
		return nil, &storage.NotFoundError{UID: uid}
	}
	return snap, nil
}

// Delete removes a snapshot from the document.
func (f *FileStorage) Delete(ctx context.Context, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	snaps, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := snaps[uid]; !ok {
		return nil
	}
	delete(snaps, uid)
	return f.write(snaps)
}

// List returns every snapshot in the document.
func (f *FileStorage) List(ctx context.Context) ([]*saga.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snaps, err := f.load()
	if err != nil {
		return nil, err
	}
	result := make([]*saga.Snapshot, 0, len(snaps))
	for _, snap := range snaps {
		result = append(result, snap)
	}
	storage.SortSnapshots(result)
	return result, nil
}

// Close is a no-op; every write is already durable.
func (f *FileStorage) Close() error {
	return nil
}
