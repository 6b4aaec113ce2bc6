package telegram

import (
	"context"
	"strings"
	"testing"

	"jeev/pkg/config"
	"jeev/pkg/logger"
	"jeev/pkg/message"
	"jeev/pkg/transport"

	"github.com/mymmrac/telego"
)

func TestAllowFromSet(t *testing.T) {
	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	if len(allowed) != 2 {
		t.Fatalf("allowFromSet len = %d, want 2", len(allowed))
	}
	if _, ok := allowed["123"]; !ok {
		t.Fatal("allowFromSet missing 123")
	}
	if _, ok := allowed["456"]; !ok {
		t.Fatal("allowFromSet missing 456")
	}
}

func TestSenderAllowed(t *testing.T) {
	adapter := &Adapter{allowFrom: map[string]struct{}{"1": {}}}
	if !adapter.senderAllowed("1") {
		t.Fatal("expected sender 1 to be allowed")
	}
	if adapter.senderAllowed("2") {
		t.Fatal("expected sender 2 to be denied")
	}

	adapter.allowFrom = nil
	if !adapter.senderAllowed("any") {
		t.Fatal("expected sender to be allowed when allowlist empty")
	}
}

func TestNewAdapterRequiresToken(t *testing.T) {
	if _, err := NewAdapter(config.TelegramConfig{Token: "  "}, nil); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestToMessage(t *testing.T) {
	adapter := &Adapter{allowFrom: allowFromSet([]string{"7"}), log: logger.Discard()}

	update := telego.Update{
		UpdateID: 99,
		Message: &telego.Message{
			Text: "  jeev: ping  ",
			Chat: telego.Chat{ID: -100},
			From: &telego.User{ID: 7, FirstName: "Jake"},
		},
	}

	msg, ok := adapter.toMessage(update)
	if !ok {
		t.Fatal("expected message from allowed sender")
	}
	if msg.Channel != "-100" || msg.User != "Jake" || msg.Text != "jeev: ping" {
		t.Fatalf("unexpected message %v", msg)
	}
	if msg.Meta["update_id"] != "99" || msg.Meta["sender_id"] != "7" {
		t.Fatalf("unexpected meta %v", msg.Meta)
	}

	update.Message.From = &telego.User{ID: 8, Username: "stranger"}
	if _, ok := adapter.toMessage(update); ok {
		t.Fatal("expected sender 8 to be rejected")
	}

	update.Message.From = &telego.User{ID: 7, Username: "jake"}
	update.Message.Text = "   "
	if _, ok := adapter.toMessage(update); ok {
		t.Fatal("expected blank text to be ignored")
	}

	if _, ok := adapter.toMessage(telego.Update{}); ok {
		t.Fatal("expected update without message to be ignored")
	}
}

func TestChatID(t *testing.T) {
	if got := chatID(" 42 "); got.ID != 42 {
		t.Fatalf("chatID numeric = %+v", got)
	}
	if got := chatID("@jeevbot"); got.Username != "@jeevbot" {
		t.Fatalf("chatID username = %+v", got)
	}
}

func TestRenderAttachmentEscapesHTML(t *testing.T) {
	attachment := message.NewAttachment("<b>hi</b>", "body & soul", "").WithField("k", "v<", true)
	got := renderAttachment(attachment)

	want := "&lt;b&gt;hi&lt;/b&gt;\nbody &amp; soul\n<b>k</b>: v&lt;"
	if got != want {
		t.Fatalf("renderAttachment = %q, want %q", got, want)
	}

	if got := renderAttachment(message.Attachment{Fallback: "plain"}); got != "plain" {
		t.Fatalf("renderAttachment fallback = %q", got)
	}
}

func TestAdapterCapabilities(t *testing.T) {
	caps := transport.Detect(&Adapter{})
	if caps.Joiner == nil || caps.Attachments == nil {
		t.Fatal("telegram adapter should join and send attachments")
	}
}

func TestStopWithoutStart(t *testing.T) {
	adapter := &Adapter{log: logger.Discard()}
	if err := adapter.Stop(); err == nil {
		t.Fatal("expected error stopping an adapter that never started")
	}
	if err := adapter.SendMessage(context.Background(), "1", "x"); err == nil {
		t.Fatal("expected error sending before start")
	}
}

func TestPreviewText(t *testing.T) {
	short := " hello "
	if got := previewText(short); got != "hello" {
		t.Fatalf("previewText short = %q, want %q", got, "hello")
	}

	long := strings.Repeat("a", messagePreviewLimit+20)
	got := previewText(long)
	if len(got) != messagePreviewLimit+3 {
		t.Fatalf("previewText long len = %d, want %d", len(got), messagePreviewLimit+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("previewText long = %q, want ellipsis suffix", got)
	}
}
