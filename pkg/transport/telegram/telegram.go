package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"jeev/pkg/config"
	"jeev/pkg/message"
	"jeev/pkg/transport"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const adapterName = "telegram"
const messagePreviewLimit = 240

// Adapter bridges Telegram long polling into the host. The chat ID is the
// message channel.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	log       *slog.Logger

	mu     sync.Mutex
	bot    *telego.Bot
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "transport.telegram"),
	}, nil
}

func (a *Adapter) Name() string {
	return adapterName
}

// Start connects the bot and begins long polling.
func (a *Adapter) Start(ctx context.Context, handler transport.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done != nil {
		return errors.New("telegram adapter is already running")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	updates, err := bot.UpdatesViaLongPolling(runCtx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	a.bot = bot
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.run(runCtx, updates, handler, a.done)

	a.log.Info("Telegram transport started")
	return nil
}

func (a *Adapter) run(ctx context.Context, updates <-chan telego.Update, handler transport.Handler, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				if ctx.Err() == nil {
					a.mu.Lock()
					a.runErr = errors.New("telegram updates channel closed")
					a.mu.Unlock()
				}
				return
			}

			msg, ok := a.toMessage(update)
			if !ok {
				continue
			}
			a.log.Info("Received message", "chat_id", msg.Channel, "user", msg.User, "content", previewText(msg.Text))
			handler(ctx, msg)
		}
	}
}

// toMessage converts a text update from an allowed sender.
func (a *Adapter) toMessage(update telego.Update) (*message.Message, bool) {
	incoming := update.Message
	if incoming == nil {
		return nil, false
	}

	content := strings.TrimSpace(incoming.Text)
	if content == "" {
		return nil, false
	}
	if incoming.From == nil {
		a.log.Debug("Ignoring message without sender")
		return nil, false
	}

	senderID := strconv.FormatInt(incoming.From.ID, 10)
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return nil, false
	}

	user := incoming.From.Username
	if user == "" {
		user = incoming.From.FirstName
	}

	return message.New(strconv.FormatInt(incoming.Chat.ID, 10), user, content, map[string]string{
		"update_id": strconv.Itoa(update.UpdateID),
		"sender_id": senderID,
	}), true
}

// Stop ends long polling and waits for the update loop to exit.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	if done == nil {
		return errors.New("telegram adapter is not running")
	}

	cancel()
	<-done
	return nil
}

// Join blocks until the update loop exits.
func (a *Adapter) Join(ctx context.Context) error {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()

	if done == nil {
		return errors.New("telegram adapter is not running")
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runErr
}

func (a *Adapter) SendMessage(ctx context.Context, channel string, text string) error {
	return a.send(ctx, tu.Message(chatID(channel), text))
}

// SendAttachment renders attachments as HTML messages.
func (a *Adapter) SendAttachment(ctx context.Context, channel string, attachments ...message.Attachment) error {
	for _, attachment := range attachments {
		params := tu.Message(chatID(channel), renderAttachment(attachment)).WithParseMode(telego.ModeHTML)
		if err := a.send(ctx, params); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) send(ctx context.Context, params *telego.SendMessageParams) error {
	a.mu.Lock()
	bot := a.bot
	a.mu.Unlock()

	if bot == nil {
		return errors.New("telegram adapter is not running")
	}

	a.log.Info("Sending message", "chat_id", params.ChatID.String(), "content", previewText(params.Text))
	if _, err := bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// chatID addresses numeric chat IDs directly and anything else as a
// channel username.
func chatID(channel string) telego.ChatID {
	trimmed := strings.TrimSpace(channel)
	if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return tu.ID(id)
	}

	return tu.Username(trimmed)
}

func renderAttachment(attachment message.Attachment) string {
	var lines []string
	if attachment.Pretext != "" {
		lines = append(lines, html.EscapeString(attachment.Pretext))
	}
	if attachment.Text != "" {
		lines = append(lines, html.EscapeString(attachment.Text))
	}
	for _, field := range attachment.Fields {
		lines = append(lines, fmt.Sprintf("<b>%s</b>: %s", html.EscapeString(field.Title), html.EscapeString(field.Value)))
	}
	if len(lines) == 0 {
		return html.EscapeString(attachment.Fallback)
	}

	return strings.Join(lines, "\n")
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
