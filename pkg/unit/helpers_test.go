package unit

import (
	"context"
	"sync"
	"testing"
	"time"

	"jeev/pkg/config"
	"jeev/pkg/logger"
	"jeev/pkg/message"
	"jeev/pkg/storage"
)

type reportedError struct {
	unit string
	err  error
}

type fakeHost struct {
	mu      sync.Mutex
	sent    []string
	errs    []reportedError
	opened  []string
	backend *storage.Memory
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()

	backend := storage.NewMemory()
	if err := backend.Start(context.Background()); err != nil {
		t.Fatalf("start storage: %v", err)
	}
	return &fakeHost{backend: backend}
}

func (h *fakeHost) SendMessage(_ context.Context, channel string, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, channel+"|"+text)
	return nil
}

func (h *fakeHost) SendAttachment(ctx context.Context, channel string, attachments ...message.Attachment) error {
	for _, att := range attachments {
		if err := h.SendMessage(ctx, channel, att.Fallback); err != nil {
			return err
		}
	}
	return nil
}

func (h *fakeHost) OpenData(unit string) (storage.Handle, error) {
	h.mu.Lock()
	h.opened = append(h.opened, unit)
	h.mu.Unlock()
	return h.backend.Open(unit)
}

func (h *fakeHost) ReportError(unit string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, reportedError{unit: unit, err: err})
}

func (h *fakeHost) errors() []reportedError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]reportedError(nil), h.errs...)
}

func (h *fakeHost) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sent...)
}

func newTestRegistry(t *testing.T, host Host, defs ...Definition) *Registry {
	t.Helper()

	registry := NewRegistry(
		NewCatalog(defs...),
		host,
		WithLogger(logger.Discard()),
		WithEnviron(config.MapEnviron(nil)),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = registry.Close(ctx)
	})
	return registry
}

func msg(text string, targeting bool) *message.Message {
	return message.New("general", "jake", text, nil).Route(nil, targeting)
}

type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, name)
}

func (c *calls) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
