package storage

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"
)

// Memory keeps unit data for the life of the process. Reopening a unit
// returns its earlier data until the backend stops.
type Memory struct {
	mu      sync.Mutex
	started bool
	units   map[string]map[string]json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{units: make(map[string]map[string]json.RawMessage)}
}

func (m *Memory) Name() string {
	return "memory"
}

func (m *Memory) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = true
	return nil
}

func (m *Memory) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = false
	m.units = make(map[string]map[string]json.RawMessage)
	return nil
}

func (m *Memory) Open(unit string) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil, ErrNotStarted
	}

	data, ok := m.units[unit]
	if !ok {
		data = make(map[string]json.RawMessage)
		m.units[unit] = data
	}

	return &memoryHandle{backend: m, data: data}, nil
}

type memoryHandle struct {
	backend *Memory
	closed  bool
	data    map[string]json.RawMessage
}

func (h *memoryHandle) Get(key string, dst any) (bool, error) {
	h.backend.mu.Lock()
	raw, ok := h.data[key]
	closed := h.closed
	h.backend.mu.Unlock()

	if closed {
		return false, ErrClosed
	}
	if !ok {
		return false, nil
	}

	return true, json.Unmarshal(raw, dst)
}

func (h *memoryHandle) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	h.data[key] = raw
	return nil
}

func (h *memoryHandle) Delete(key string) error {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	delete(h.data, key)
	return nil
}

func (h *memoryHandle) Keys() ([]string, error) {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	return slices.Sorted(maps.Keys(h.data)), nil
}

func (h *memoryHandle) Len() (int, error) {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()

	if h.closed {
		return 0, ErrClosed
	}
	return len(h.data), nil
}

func (h *memoryHandle) Sync() error {
	return nil
}

func (h *memoryHandle) Close() error {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()

	h.closed = true
	return nil
}
