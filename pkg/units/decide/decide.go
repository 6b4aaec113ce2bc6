package decide

import (
	"context"
	"math/rand/v2"
	"strings"

	"jeev/pkg/message"
	"jeev/pkg/unit"
)

var Unit = unit.Definition{
	Name:        "decide",
	Author:      "Jake",
	Description: "Picks one of several choices.",
	Setup:       setup,
}

// pick is replaced in tests.
var pick = func(n int) int {
	return rand.IntN(n)
}

func setup(u *unit.Unit) error {
	// decide "a b" "c d"
	err := u.Respond(`decide "(.*)"`, func(ctx context.Context, msg *message.Message, captures unit.Captures) error {
		if err := reply(ctx, msg, strings.Split(captures.Positional[0], `" "`)); err != nil {
			return err
		}
		return unit.Stop
	})
	if err != nil {
		return err
	}

	// decide a b c
	return u.Respond(`decide ([^"]+)`, func(ctx context.Context, msg *message.Message, captures unit.Captures) error {
		return reply(ctx, msg, strings.Fields(captures.Positional[0]))
	})
}

func reply(ctx context.Context, msg *message.Message, choices []string) error {
	if len(choices) == 0 {
		return nil
	}
	return msg.ReplyToUser(ctx, "Definitely "+choices[pick(len(choices))])
}
