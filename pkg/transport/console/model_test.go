package console

import (
	"context"
	"strings"
	"testing"

	"jeev/pkg/config"
	"jeev/pkg/logger"
	"jeev/pkg/message"
	"jeev/pkg/transport"

	tea "github.com/charmbracelet/bubbletea"
)

func typeLine(t *testing.T, m *model, text string) tea.Cmd {
	t.Helper()

	m.input.SetValue(text)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func TestSubmitSendsMessageToHandler(t *testing.T) {
	t.Parallel()

	var got *message.Message
	m := newModel(context.Background(), func(_ context.Context, msg *message.Message) {
		got = msg
	}, "Jeev", "general", "jake")

	cmd := typeLine(t, m, "  jeev: ping  ")
	if cmd == nil {
		t.Fatal("expected a command delivering the message")
	}
	cmd()

	if got == nil {
		t.Fatal("handler did not receive the message")
	}
	if got.Channel != "general" || got.User != "jake" || got.Text != "jeev: ping" {
		t.Fatalf("unexpected message %v", got)
	}
	if m.input.Value() != "" {
		t.Fatalf("input should be cleared, got %q", m.input.Value())
	}
	if len(m.lines) != 1 || m.lines[0].kind != lineUser {
		t.Fatalf("expected one echoed user line, got %+v", m.lines)
	}
}

func TestSwitchChannelAndUser(t *testing.T) {
	t.Parallel()

	called := false
	m := newModel(context.Background(), func(context.Context, *message.Message) { called = true }, "Jeev", "console", "user")

	if cmd := typeLine(t, m, `\c #random`); cmd != nil {
		t.Fatal("channel switch must not reach the handler")
	}
	if cmd := typeLine(t, m, `\u alice`); cmd != nil {
		t.Fatal("user switch must not reach the handler")
	}

	if m.channel != "random" || m.user != "alice" {
		t.Fatalf("channel/user = %q/%q, want random/alice", m.channel, m.user)
	}
	if called {
		t.Fatal("handler should not be called for switches")
	}

	if cmd := typeLine(t, m, `\c`); cmd == nil {
		t.Fatal("a bare \\c is ordinary text")
	}
}

func TestBotLinesRender(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, "Jeev", "general", "jake")
	m.Update(botLineMsg{channel: "general", text: "pong"})

	if len(m.lines) != 1 || m.lines[0].kind != lineBot {
		t.Fatalf("expected one bot line, got %+v", m.lines)
	}
	if got := formatBotLine("general", "pong"); got != "< [#general] pong" {
		t.Fatalf("formatBotLine = %q", got)
	}
	if !strings.Contains(m.viewport.View(), "pong") {
		t.Fatal("bot line should be visible in the viewport")
	}
}

func TestEmptyInputIsIgnored(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, "Jeev", "general", "jake")
	if cmd := typeLine(t, m, "   "); cmd != nil {
		t.Fatal("expected no command for blank input")
	}
	if len(m.lines) != 0 {
		t.Fatalf("expected no lines, got %+v", m.lines)
	}
}

func TestQuitKeys(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, "Jeev", "general", "jake")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("ctrl+c should quit")
	}
}

func TestAdapterDefaultsAndCapabilities(t *testing.T) {
	t.Parallel()

	adapter := NewAdapter(config.ConsoleConfig{}, "Jeev", logger.Discard())
	if adapter.cfg.Channel != config.DefaultConsoleChannel || adapter.cfg.User != config.DefaultConsoleUser {
		t.Fatalf("unexpected defaults %+v", adapter.cfg)
	}

	caps := transport.Detect(adapter)
	if caps.Joiner == nil {
		t.Fatal("console adapter should join")
	}
	if caps.Attachments != nil {
		t.Fatal("console adapter degrades attachments to text")
	}

	if err := adapter.SendMessage(context.Background(), "general", "x"); err == nil {
		t.Fatal("expected error sending before start")
	}
}
