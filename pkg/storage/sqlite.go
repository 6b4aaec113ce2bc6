package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS unit_data (
	unit TEXT NOT NULL,
	key TEXT NOT NULL,
	value BLOB NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (unit, key)
);`

// SQLite persists unit data in one table keyed by (unit, key). Handles cache
// a unit's rows in memory and write changes back on Sync.
type SQLite struct {
	path string
	log  *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

func NewSQLite(path string, log *slog.Logger) *SQLite {
	if log == nil {
		log = slog.Default()
	}

	return &SQLite{path: path, log: log.With("component", "storage.sqlite")}
}

func (s *SQLite) Name() string {
	return "sqlite"
}

func (s *SQLite) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	if s.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return fmt.Errorf("initialize sqlite schema: %w", err)
	}

	s.db = db
	s.log.Info("storage started", "path", s.path)
	return nil
}

func (s *SQLite) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLite) Open(unit string) (Handle, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()

	if db == nil {
		return nil, ErrNotStarted
	}

	rows, err := db.Query(`SELECT key, value FROM unit_data WHERE unit = ?`, unit)
	if err != nil {
		return nil, fmt.Errorf("load data for unit %q: %w", unit, err)
	}
	defer rows.Close()

	cache := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan data for unit %q: %w", unit, err)
		}
		cache[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load data for unit %q: %w", unit, err)
	}

	return &sqliteHandle{
		db:      db,
		unit:    unit,
		cache:   cache,
		dirty:   make(map[string]struct{}),
		deleted: make(map[string]struct{}),
	}, nil
}

type sqliteHandle struct {
	db   *sql.DB
	unit string

	mu      sync.Mutex
	closed  bool
	cache   map[string]json.RawMessage
	dirty   map[string]struct{}
	deleted map[string]struct{}
}

func (h *sqliteHandle) Get(key string, dst any) (bool, error) {
	h.mu.Lock()
	raw, ok := h.cache[key]
	closed := h.closed
	h.mu.Unlock()

	if closed {
		return false, ErrClosed
	}
	if !ok {
		return false, nil
	}

	return true, json.Unmarshal(raw, dst)
}

func (h *sqliteHandle) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	h.cache[key] = raw
	h.dirty[key] = struct{}{}
	delete(h.deleted, key)
	return nil
}

func (h *sqliteHandle) Delete(key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	delete(h.cache, key)
	delete(h.dirty, key)
	h.deleted[key] = struct{}{}
	return nil
}

func (h *sqliteHandle) Keys() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	return slices.Sorted(maps.Keys(h.cache)), nil
}

func (h *sqliteHandle) Len() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, ErrClosed
	}
	return len(h.cache), nil
}

func (h *sqliteHandle) Sync() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	return h.flushLocked()
}

func (h *sqliteHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	err := h.flushLocked()
	h.closed = true
	h.cache = nil
	return err
}

func (h *sqliteHandle) flushLocked() error {
	if len(h.dirty) == 0 && len(h.deleted) == 0 {
		return nil
	}

	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("begin sync for unit %q: %w", h.unit, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for key := range h.dirty {
		if _, err := tx.Exec(
			`INSERT INTO unit_data (unit, key, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(unit, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			h.unit, key, []byte(h.cache[key]), now,
		); err != nil {
			return fmt.Errorf("write %q for unit %q: %w", key, h.unit, err)
		}
	}
	for key := range h.deleted {
		if _, err := tx.Exec(`DELETE FROM unit_data WHERE unit = ? AND key = ?`, h.unit, key); err != nil {
			return fmt.Errorf("delete %q for unit %q: %w", key, h.unit, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync for unit %q: %w", h.unit, err)
	}

	clear(h.dirty)
	clear(h.deleted)
	return nil
}
