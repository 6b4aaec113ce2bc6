// Package unittest loads units against an in-memory host for tests.
package unittest

import (
	"context"
	"sync"
	"testing"
	"time"

	"jeev/pkg/config"
	"jeev/pkg/logger"
	"jeev/pkg/message"
	"jeev/pkg/storage"
	"jeev/pkg/unit"
)

// Host records everything units send and every error they report.
type Host struct {
	mu      sync.Mutex
	sent    []Sent
	errs    []error
	backend *storage.Memory
}

// Sent is one outbound message.
type Sent struct {
	Channel string
	Text    string
}

func NewHost(t testing.TB) *Host {
	t.Helper()

	backend := storage.NewMemory()
	if err := backend.Start(context.Background()); err != nil {
		t.Fatalf("start storage: %v", err)
	}
	t.Cleanup(func() { _ = backend.Stop() })

	return &Host{backend: backend}
}

func (h *Host) SendMessage(_ context.Context, channel string, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sent = append(h.sent, Sent{Channel: channel, Text: text})
	return nil
}

func (h *Host) SendAttachment(ctx context.Context, channel string, attachments ...message.Attachment) error {
	for _, attachment := range attachments {
		if err := h.SendMessage(ctx, channel, attachment.Fallback); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) OpenData(unitName string) (storage.Handle, error) {
	return h.backend.Open(unitName)
}

func (h *Host) ReportError(_ string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.errs = append(h.errs, err)
}

// Texts returns the text of every sent message in order.
func (h *Host) Texts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	texts := make([]string, 0, len(h.sent))
	for _, sent := range h.sent {
		texts = append(texts, sent.Text)
	}
	return texts
}

func (h *Host) Sent() []Sent {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]Sent(nil), h.sent...)
}

func (h *Host) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]error(nil), h.errs...)
}

// Harness is a registry wired to a recording Host.
type Harness struct {
	t        testing.TB
	Host     *Host
	Registry *unit.Registry
}

// New returns a harness whose catalog holds defs. Units are unloaded when
// the test ends.
func New(t testing.TB, env map[string]string, defs ...unit.Definition) *Harness {
	t.Helper()

	host := NewHost(t)
	registry := unit.NewRegistry(unit.NewCatalog(defs...), host,
		unit.WithLogger(logger.Discard()),
		unit.WithEnviron(config.MapEnviron(env)),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = registry.Close(ctx)
	})

	return &Harness{t: t, Host: host, Registry: registry}
}

// Load loads name with raw options and fails the test on error.
func (h *Harness) Load(name string, raw map[string]any) *unit.Unit {
	h.t.Helper()

	u, err := h.Registry.Load(context.Background(), name, raw)
	if err != nil {
		h.t.Fatalf("load %s: %v", name, err)
	}
	return u
}

// Say dispatches text from user in channel. Targeting marks the message as
// addressed to the bot.
func (h *Harness) Say(channel string, user string, text string, targeting bool) {
	msg := message.New(channel, user, text, nil).Route(h.Host, targeting)
	h.Registry.Dispatch(context.Background(), msg)
}

// Eventually polls cond until it holds or fails the test after two seconds.
func (h *Harness) Eventually(cond func() bool) {
	h.t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatal("condition not met before deadline")
}
