package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"jeev/pkg/bus"
	"jeev/pkg/config"
	"jeev/pkg/logger"
	"jeev/pkg/message"
	"jeev/pkg/storage"
	"jeev/pkg/transport"
	"jeev/pkg/unit"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// scriptedAdapter is an in-memory transport that records outbound text.
type scriptedAdapter struct {
	mu       sync.Mutex
	handler  transport.Handler
	ctx      context.Context
	outbound []string
	started  bool
	stopped  chan struct{}
	startErr error
}

func newScriptedAdapter() *scriptedAdapter {
	return &scriptedAdapter{stopped: make(chan struct{})}
}

func (a *scriptedAdapter) Name() string {
	return "scripted"
}

func (a *scriptedAdapter) Start(ctx context.Context, handler transport.Handler) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.startErr != nil {
		return a.startErr
	}
	a.ctx = ctx
	a.handler = handler
	a.started = true
	return nil
}

func (a *scriptedAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return errors.New("not started")
	}
	a.started = false
	close(a.stopped)
	return nil
}

func (a *scriptedAdapter) Join(ctx context.Context) error {
	select {
	case <-a.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *scriptedAdapter) SendMessage(_ context.Context, channel string, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.outbound = append(a.outbound, channel+"|"+text)
	return nil
}

func (a *scriptedAdapter) deliver(channel string, user string, text string) {
	a.mu.Lock()
	handler, ctx := a.handler, a.ctx
	a.mu.Unlock()

	handler(ctx, message.New(channel, user, text, nil))
}

func (a *scriptedAdapter) sent() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]string(nil), a.outbound...)
}

// attachmentAdapter renders attachments natively.
type attachmentAdapter struct {
	*scriptedAdapter
}

func (a attachmentAdapter) SendAttachment(ctx context.Context, channel string, attachments ...message.Attachment) error {
	for _, attachment := range attachments {
		if err := a.SendMessage(ctx, channel, "rich:"+attachment.Text); err != nil {
			return err
		}
	}
	return nil
}

func echoCatalog() *unit.Catalog {
	return unit.NewCatalog(
		unit.Definition{
			Name: "echo",
			Setup: func(u *unit.Unit) error {
				return u.Respond(`echo (.+)`, func(ctx context.Context, msg *message.Message, captures unit.Captures) error {
					return msg.Reply(ctx, captures.Positional[0])
				})
			},
		},
		unit.Definition{
			Name: "greeter",
			Setup: func(u *unit.Unit) error {
				u.DeclareOption("greeting", "Greeting text")
				u.Command("!hello", func(ctx context.Context, msg *message.Message) error {
					greeting, err := u.Opts().String("greeting")
					if err != nil {
						return err
					}
					return msg.ReplyToUser(ctx, greeting)
				})
				return nil
			},
		},
		unit.Definition{
			Name: "site",
			Setup: func(u *unit.Unit) error {
				u.SetHTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					_, _ = fmt.Fprintf(w, "site:%s", r.URL.Path)
				}))
				return nil
			},
		},
		unit.Definition{
			Name: "broken",
			Setup: func(u *unit.Unit) error {
				u.Listen(func(context.Context, *message.Message) error {
					return errors.New("boom")
				})
				return nil
			},
		},
	)
}

func testConfig(units config.UnitsSpec) *config.Config {
	cfg := config.Default()
	cfg.Units = units
	cfg.Storage.SyncIntervalSeconds = 0
	return cfg
}

func newTestHost(t *testing.T, cfg *config.Config, adapter transport.Adapter) *Host {
	t.Helper()

	h, err := New(cfg, echoCatalog(),
		WithAdapter(adapter),
		WithStorage(storage.NewMemory()),
		WithEnviron(config.MapEnviron(nil)),
		WithLogger(logger.Discard()),
	)
	require.NoError(t, err)
	return h
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestTargeting(t *testing.T) {
	h := newTestHost(t, testConfig(nil), newScriptedAdapter())

	cases := map[string]bool{
		"jeev: ping":  true,
		"Jeev, hello": true,
		"JEEV! wake":  true,
		"jeev ping":   true,
		"jeevs: ping": false,
		"hey jeev: x": false,
		"jeev":        false,
		"jeev.ping":   false,
		"":            false,
	}
	for text, want := range cases {
		if got := h.Targeting(text); got != want {
			t.Fatalf("Targeting(%q) = %v, want %v", text, got, want)
		}
	}

	cfg := testConfig(nil)
	cfg.Name = "R2.D2"
	h = newTestHost(t, cfg, newScriptedAdapter())
	if !h.Targeting("r2.d2: hi") || h.Targeting("r2xd2: hi") {
		t.Fatal("bot name must be matched literally")
	}
}

func TestEchoRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	adapter := newScriptedAdapter()
	h := newTestHost(t, testConfig(config.UnitsSpec{
		{Name: "echo"},
		{Name: "greeter", Options: map[string]any{"greeting": "hi there"}},
	}), adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.Start(ctx))
	require.ErrorIs(t, h.Start(ctx), ErrRunning)
	require.True(t, h.Ready())

	adapter.deliver("general", "jake", "echo ignored")
	adapter.deliver("general", "jake", "jeev: echo hello")
	adapter.deliver("random", "finn", "!hello")

	eventually(t, func() bool { return len(adapter.sent()) == 2 })
	got := adapter.sent()
	want := []string{"general|hello", "random|finn: hi there"}
	if !cmp.Equal(got, want) && !cmp.Equal(got, []string{want[1], want[0]}) {
		t.Fatalf("sent mismatch (-want +got):\n%s", cmp.Diff(want, got))
	}

	require.NoError(t, h.Stop())
	require.ErrorIs(t, h.Stop(), ErrNotRunning)
	require.ErrorIs(t, h.Start(ctx), ErrStopped)
	require.Zero(t, h.Registry().Len())
	require.False(t, h.Ready())
}

func TestUnitErrorsArePublished(t *testing.T) {
	defer goleak.VerifyNone(t)

	adapter := newScriptedAdapter()
	h := newTestHost(t, testConfig(config.UnitsSpec{{Name: "broken"}, {Name: "echo"}}), adapter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe := h.Bus().SubscribeEvents(ctx, 16)
	defer unsubscribe()

	require.NoError(t, h.Start(ctx))
	adapter.deliver("general", "jake", "jeev: echo still works")

	eventually(t, func() bool { return len(adapter.sent()) == 1 })

	var unitErr bus.Event
	deadline := time.After(2 * time.Second)
	for unitErr.Type != bus.EventUnitError {
		select {
		case unitErr = <-events:
		case <-deadline:
			t.Fatal("no unit_error event")
		}
	}
	require.Equal(t, "broken", unitErr.Unit)
	require.Contains(t, unitErr.Error, "boom")

	require.NoError(t, h.Stop())
}

func TestStartFailsOnInvalidUnits(t *testing.T) {
	defer goleak.VerifyNone(t)

	adapter := newScriptedAdapter()
	h := newTestHost(t, testConfig(config.UnitsSpec{{Name: "echo"}, {Name: "greeter"}}), adapter)

	err := h.Start(context.Background())
	var loadErr *unit.LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, "greeter", loadErr.Unit)
	require.Zero(t, h.Registry().Len())
	require.False(t, adapter.started)
	require.ErrorIs(t, h.Stop(), ErrNotRunning)
}

func TestStartFailsWhenTransportFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	adapter := newScriptedAdapter()
	adapter.startErr = errors.New("no network")
	h := newTestHost(t, testConfig(config.UnitsSpec{{Name: "echo"}}), adapter)

	err := h.Start(context.Background())
	require.ErrorContains(t, err, "no network")
	require.Zero(t, h.Registry().Len())
	require.Contains(t, h.Status().AdapterError, "no network")
}

func TestSendAttachmentDegradesToFallback(t *testing.T) {
	plain := newScriptedAdapter()
	h := newTestHost(t, testConfig(nil), plain)

	attachments := []message.Attachment{
		message.NewAttachment("pre", "body", "fallback"),
		message.NewAttachment("", "", ""),
	}
	require.NoError(t, h.SendAttachment(context.Background(), "general", attachments...))
	require.Equal(t, []string{"general|fallback"}, plain.sent())

	rich := attachmentAdapter{newScriptedAdapter()}
	h = newTestHost(t, testConfig(nil), rich)
	require.NoError(t, h.SendAttachment(context.Background(), "general", attachments[0]))
	require.Equal(t, []string{"general|rich:body"}, rich.sent())
}

func TestWebRoutesToUnitHandler(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(config.UnitsSpec{{Name: "site"}, {Name: "echo"}})
	cfg.Web.Enabled = true
	cfg.Web.Port = 0
	adapter := newScriptedAdapter()
	h := newTestHost(t, cfg, adapter)
	require.NotNil(t, h.Web())

	require.NoError(t, h.Start(context.Background()))
	handler := h.Web().Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/site/page", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "site:/page", rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/echo/page", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	status := h.Status()
	require.Equal(t, "scripted", status.Adapter)
	require.Equal(t, []string{"site", "echo"}, status.Units)

	require.NoError(t, h.Stop())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	adapter := newScriptedAdapter()
	h := newTestHost(t, testConfig(config.UnitsSpec{{Name: "echo"}}), adapter)

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { done <- h.Run(ctx) }()

	eventually(t, h.Ready)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	require.Zero(t, h.Registry().Len())
}

func TestNewRejectsUnknownAdapter(t *testing.T) {
	cfg := testConfig(nil)
	cfg.Adapter = "irc"
	_, err := New(cfg, echoCatalog(), WithStorage(storage.NewMemory()), WithLogger(logger.Discard()))
	require.ErrorContains(t, err, `unsupported adapter "irc"`)

	cfg.Adapter = "telegram"
	cfg.Telegram.Token = ""
	_, err = New(cfg, echoCatalog(), WithStorage(storage.NewMemory()), WithLogger(logger.Discard()))
	require.Error(t, err)
}
