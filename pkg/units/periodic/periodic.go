package periodic

import (
	"context"
	"sync"
	"time"

	"jeev/pkg/message"
	"jeev/pkg/option"
	"jeev/pkg/task"
	"jeev/pkg/unit"
)

var Unit = unit.Definition{
	Name:        "periodic",
	Author:      "Jake",
	Description: "Announces something on a schedule until told to stop.",
	Setup:       setup,
}

type announcer struct {
	mu       sync.Mutex
	schedule *task.Periodic
	channel  string
}

func setup(u *unit.Unit) error {
	u.DeclareOption("interval", "Time between announcements",
		option.WithCast(option.CastDuration),
		option.WithDefault(10*time.Second),
	)
	u.DeclareOption("text", "What to announce", option.WithDefault("something!"))
	u.RegisterValidator("interval", func(value any) (any, error) {
		if value.(time.Duration) <= 0 {
			return nil, option.NewConfigError("interval", "must be positive")
		}
		return value, nil
	})

	a := &announcer{}

	u.OnLoaded(func(context.Context) error {
		interval, err := u.Opts().Duration("interval")
		if err != nil {
			return err
		}
		text, err := u.Opts().String("text")
		if err != nil {
			return err
		}

		a.mu.Lock()
		a.schedule = u.Periodic(interval, func(ctx context.Context) (any, error) {
			a.mu.Lock()
			channel := a.channel
			a.mu.Unlock()
			return nil, u.SendMessage(ctx, channel, text)
		})
		a.mu.Unlock()
		return nil
	})

	if err := u.Hear(`^periodic$`, func(ctx context.Context, msg *message.Message, _ unit.Captures) error {
		a.mu.Lock()
		schedule := a.schedule
		if schedule == nil {
			a.mu.Unlock()
			return nil
		}
		if schedule.Started() {
			a.mu.Unlock()
			if err := schedule.Stop(); err != nil {
				return err
			}
			return msg.Reply(ctx, "stopped")
		}
		a.channel = msg.Channel
		a.mu.Unlock()

		if err := schedule.Start(false); err != nil {
			return err
		}
		return msg.Reply(ctx, "started")
	}); err != nil {
		return err
	}

	return u.Hear(`^stfu$`, func(ctx context.Context, msg *message.Message, _ unit.Captures) error {
		err := msg.Reply(ctx, "shutting up forever!!!")
		u.UnloadSelf()
		return err
	})
}
