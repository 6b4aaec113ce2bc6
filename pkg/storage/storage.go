package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"jeev/pkg/config"
)

var (
	ErrClosed     = errors.New("storage handle is closed")
	ErrNotStarted = errors.New("storage backend is not started")
)

// Handle is one unit's persistent key/value data. Values are stored as JSON.
// Handles are safe for concurrent use.
type Handle interface {
	// Get decodes the value of key into dst and reports whether it existed.
	Get(key string, dst any) (bool, error)
	Set(key string, value any) error
	Delete(key string) error
	Keys() ([]string, error)
	Len() (int, error)
	// Sync flushes pending writes without releasing the handle.
	Sync() error
	// Close flushes and releases the handle.
	Close() error
}

// Backend hands out per-unit data handles.
type Backend interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Open(unit string) (Handle, error)
}

// New builds the backend named by cfg.Storage.Driver.
func New(cfg *config.Config, log *slog.Logger) (Backend, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = slog.Default()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(cfg.Storage.Path, log), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}
