package message

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender delivers outbound text and attachments to a channel.
type Sender interface {
	SendMessage(ctx context.Context, channel string, text string) error
	SendAttachment(ctx context.Context, channel string, attachments ...Attachment) error
}

// Message is one inbound chat line. Transports build it with New; the host
// binds a reply sink and the targeting flag with Route before dispatch.
type Message struct {
	ID         string
	Channel    string
	User       string
	Text       string
	Parts      []string
	Targeting  bool
	Meta       map[string]string
	ReceivedAt time.Time

	sender Sender
}

// New builds an unrouted message from transport input.
func New(channel string, user string, text string, meta map[string]string) *Message {
	return &Message{
		ID:         uuid.NewString(),
		Channel:    channel,
		User:       user,
		Text:       text,
		Parts:      strings.Fields(text),
		Meta:       maps.Clone(meta),
		ReceivedAt: time.Now().UTC(),
	}
}

// Route returns a copy bound to sender with the given targeting flag.
func (m *Message) Route(sender Sender, targeting bool) *Message {
	routed := *m
	routed.Parts = append([]string(nil), m.Parts...)
	routed.Meta = maps.Clone(m.Meta)
	routed.Targeting = targeting
	routed.sender = sender
	return &routed
}

// Command returns the first whitespace token, or "" for blank text.
func (m *Message) Command() string {
	if len(m.Parts) == 0 {
		return ""
	}

	return m.Parts[0]
}

// Reply sends text back to the message's channel.
func (m *Message) Reply(ctx context.Context, text string) error {
	if m.sender == nil {
		return errors.New("message has no reply sink")
	}

	return m.sender.SendMessage(ctx, m.Channel, text)
}

// ReplyToUser replies prefixed with the author's name.
func (m *Message) ReplyToUser(ctx context.Context, text string) error {
	return m.Reply(ctx, fmt.Sprintf("%s: %s", m.User, text))
}

// ReplyWithAttachment sends rich content back to the message's channel.
func (m *Message) ReplyWithAttachment(ctx context.Context, attachments ...Attachment) error {
	if m.sender == nil {
		return errors.New("message has no reply sink")
	}

	return m.sender.SendAttachment(ctx, m.Channel, attachments...)
}

func (m *Message) String() string {
	return fmt.Sprintf("<Message user: %s, channel: %s, text: %s>", m.User, m.Channel, m.Text)
}
