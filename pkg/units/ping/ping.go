package ping

import (
	"context"

	"jeev/pkg/message"
	"jeev/pkg/unit"
)

var Unit = unit.Definition{
	Name:        "ping",
	Author:      "Jake",
	Description: "A unit that responds to PING!",
	Setup:       setup,
}

func setup(u *unit.Unit) error {
	u.Command("!ping", func(ctx context.Context, msg *message.Message) error {
		return msg.ReplyToUser(ctx, "pong!")
	})

	return u.Respond(`whats the weather`, func(ctx context.Context, msg *message.Message, _ unit.Captures) error {
		return msg.ReplyToUser(ctx, "the weather is swell")
	})
}
