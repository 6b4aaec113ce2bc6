package ask

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"jeev/pkg/message"
	"jeev/pkg/option"
	"jeev/pkg/unit"
)

const (
	defaultModel        = "gpt-4.1-mini"
	defaultInstructions = "You are a helpful chat bot. Answer in one or two short sentences."
)

var Unit = unit.Definition{
	Name:        "ask",
	Author:      "Jake",
	Description: "Answers questions with an OpenAI model.",
	Setup:       setup,
}

type timedOut struct{}

func setup(u *unit.Unit) error {
	u.DeclareOption("api_key", "OpenAI API key")
	u.DeclareOption("model", "Model to answer with", option.WithDefault(defaultModel))
	u.DeclareOption("base_url", "Alternative API base URL", option.WithDefault(""))
	u.DeclareOption("instructions", "System instructions for every answer", option.WithDefault(defaultInstructions))
	u.DeclareOption("timeout", "Longest to wait for an answer",
		option.WithCast(option.CastDuration),
		option.WithDefault(30*time.Second),
	)

	u.RegisterValidator("api_key", func(value any) (any, error) {
		key := strings.TrimSpace(value.(string))
		if key == "" {
			return nil, errors.New("must not be blank")
		}
		if strings.ContainsAny(key, " \t\n") {
			return nil, errors.New("must not contain whitespace")
		}
		return key, nil
	})
	u.RegisterValidator("model", func(value any) (any, error) {
		return normalizeModel(value.(string))
	})

	var (
		mu  sync.Mutex
		llm *client
	)

	u.OnLoaded(func(context.Context) error {
		opts := u.Opts()
		apiKey, err := opts.String("api_key")
		if err != nil {
			return err
		}
		model, err := opts.String("model")
		if err != nil {
			return err
		}

		mu.Lock()
		llm = newClient(apiKey, opts.Get("base_url", "").(string), model, opts.Get("instructions", "").(string), u.Logger())
		mu.Unlock()
		return nil
	})

	return u.Respond(`ask (.+)$`, func(ctx context.Context, msg *message.Message, captures unit.Captures) error {
		mu.Lock()
		c := llm
		mu.Unlock()
		if c == nil {
			return errors.New("ask client is not ready")
		}

		timeout, err := u.Opts().Duration("timeout")
		if err != nil {
			return err
		}
		question := captures.Positional[0]

		_, err = u.Spawn(func(ctx context.Context) (any, error) {
			handle, err := u.SpawnWithTimeout(timeout, func(ctx context.Context) (any, error) {
				return c.Ask(ctx, question)
			}, timedOut{})
			if err != nil {
				return nil, err
			}

			answer, err := handle.Wait(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil
				}
				// the supervisor already reported err
				return nil, msg.ReplyToUser(ctx, "sorry, I couldn't answer that")
			}

			switch typed := answer.(type) {
			case timedOut:
				return nil, msg.ReplyToUser(ctx, "sorry, that took too long to answer")
			case string:
				return nil, msg.ReplyToUser(ctx, typed)
			}
			return nil, nil
		})
		return err
	})
}
