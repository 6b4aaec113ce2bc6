package sed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"jeev/pkg/message"
	"jeev/pkg/option"
	"jeev/pkg/unit"
)

const (
	historySize   = 25
	maxLineLength = 400
)

var Unit = unit.Definition{
	Name:        "sed",
	Author:      "Jake",
	Description: "Corrects recent lines with s/regex/replacement/flags.",
	Setup:       setup,
}

type timedOut struct{}

type line struct {
	user string
	text string
}

// history keeps the last historySize lines of every channel.
type history struct {
	mu       sync.Mutex
	channels map[string][]line
}

func (h *history) add(channel string, user string, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	lines := append(h.channels[channel], line{user: user, text: text})
	if len(lines) > historySize {
		lines = lines[len(lines)-historySize:]
	}
	h.channels[channel] = lines
}

// substitute rewrites the newest matching line of channel in place.
func (h *history) substitute(ctx context.Context, channel string, cmd command) (line, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	lines := h.channels[channel]
	for i := len(lines) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return line{}, false
		}
		if cmd.target != "" && strings.ToLower(lines[i].user) != cmd.target {
			continue
		}
		replaced, ok := cmd.apply(lines[i].text)
		if !ok {
			continue
		}
		lines[i].text = replaced
		return lines[i], true
	}

	return line{}, false
}

func setup(u *unit.Unit) error {
	u.DeclareOption("timeout", "Longest a substitution may run",
		option.WithCast(option.CastDuration),
		option.WithDefault(50*time.Millisecond),
	)

	lines := &history{channels: make(map[string][]line)}

	u.Listen(func(ctx context.Context, msg *message.Message) error {
		if !strings.HasPrefix(msg.Text, "s/") {
			lines.add(msg.Channel, msg.User, msg.Text)
			return nil
		}

		cmd, err := parse(msg.Text[1:])
		if err != nil {
			u.Logger().Debug("Ignoring substitution", "text", msg.Text, "error", err)
			return nil
		}

		timeout, err := u.Opts().Duration("timeout")
		if err != nil {
			return err
		}

		_, err = u.Spawn(func(ctx context.Context) (any, error) {
			handle, err := u.SpawnWithTimeout(timeout, func(ctx context.Context) (any, error) {
				corrected, ok := lines.substitute(ctx, msg.Channel, cmd)
				if !ok {
					return nil, nil
				}
				return corrected, nil
			}, timedOut{})
			if err != nil {
				return nil, err
			}

			result, err := handle.Wait(ctx)
			if err != nil {
				// the inner task already reported its failure
				return nil, nil
			}

			switch typed := result.(type) {
			case timedOut:
				return nil, msg.Reply(ctx, "that expression took too long, try a simpler one")
			case line:
				return nil, msg.Reply(ctx, fmt.Sprintf("*%s*: %s", typed.user, typed.text))
			}
			return nil, nil
		})
		return err
	})

	return nil
}
