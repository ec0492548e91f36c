// Package sqlite provides a SQLite-backed snapshot store using the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/orsa-go/orsa/pkg/saga"
	"github.com/orsa-go/orsa/pkg/storage"
)

const (
	backend    = "sqlite"
	driverName = "sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS saga_snapshots (
	uid         TEXT PRIMARY KEY,
	entry_point TEXT NOT NULL,
	data        BLOB NOT NULL,
	updated_at  INTEGER NOT NULL
)`

// Config holds configuration for SQLiteStorage.
type Config struct {
	// DSN is the database file path or a modernc.org/sqlite DSN.
	DSN string
	// BusyTimeout makes writers wait for a lock instead of failing immediately.
	BusyTimeout time.Duration
}

// SQLiteStorage implements storage.Store on a single table.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens the database and creates the snapshot table.
func NewSQLiteStorage(ctx context.Context, cfg *Config) (*SQLiteStorage, error) {
	if cfg.DSN == "" {
		return nil, &storage.StorageUnavailableError{Backend: backend, Cause: errors.New("dsn cannot be empty")}
	}
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	if cfg.BusyTimeout > 0 {
		pragma := fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds())
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, &storage.StorageUnavailableError{Backend: backend, Cause: err}
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, &storage.StorageUnavailableError{Backend: backend, Cause: fmt.Errorf("create schema: %w", err)}
	}
	return &SQLiteStorage{db: db}, nil
}

// Save upserts the snapshot row.
func (s *SQLiteStorage) Save(ctx context.Context, snap *saga.Snapshot) error {
	data, err := storage.Encode(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO saga_snapshots (uid, entry_point, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(uid) DO UPDATE SET entry_point = excluded.entry_point, data = excluded.data, updated_at = excluded.updated_at`,
		snap.UID, snap.SourceEntryPoint, data, snap.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	return nil
}

// Get retrieves a snapshot by UID.
func (s *SQLiteStorage) Get(ctx context.Context, uid string) (*saga.Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM saga_snapshots WHERE uid = ?`, uid).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{UID: uid}
	}
	if err != nil {
		return nil, &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	return storage.Decode(uid, data)
}

// Delete removes the snapshot row.
func (s *SQLiteStorage) Delete(ctx context.Context, uid string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM saga_snapshots WHERE uid = ?`, uid); err != nil {
		return &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	return nil
}

// List returns every snapshot row.
func (s *SQLiteStorage) List(ctx context.Context) ([]*saga.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid, data FROM saga_snapshots ORDER BY updated_at, uid`)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	defer rows.Close()

	var snaps []*saga.Snapshot
	for rows.Next() {
		var (
			uid  string
			data []byte
		)
		if err := rows.Scan(&uid, &data); err != nil {
			return nil, &storage.StorageUnavailableError{Backend: backend, Cause: err}
		}
		snap, err := storage.Decode(uid, data)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.StorageUnavailableError{Backend: backend, Cause: err}
	}
	storage.SortSnapshots(snaps)
	return snaps, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
