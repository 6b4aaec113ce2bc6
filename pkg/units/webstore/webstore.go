package webstore

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"jeev/pkg/message"
	"jeev/pkg/option"
	"jeev/pkg/unit"
)

var Unit = unit.Definition{
	Name:        "webstore",
	Author:      "Jake",
	Description: "Stores values from chat and serves them over HTTP.",
	Setup:       setup,
}

func setup(u *unit.Unit) error {
	u.DeclareOption("notify_channel", "Channel told about every web request", option.WithDefault(""))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		notify(r.Context(), u)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintf(w, "I am the unit %s.\n%s\n", u.Name(), u.Description())
	})
	mux.HandleFunc("GET /{key}", func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		value, found, err := lookup(u, key)
		if err != nil {
			u.Logger().Error("Failed to read value", "key", key, "error", err)
			http.Error(w, "storage unavailable", http.StatusInternalServerError)
			return
		}
		if !found {
			http.Error(w, fmt.Sprintf("A value for key: %s was not found", key), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, value)
	})
	u.SetHTTPHandler(mux)

	if err := u.Respond(`set ([^ ]+) to (.*)$`, func(ctx context.Context, msg *message.Message, captures unit.Captures) error {
		key, value := captures.Positional[0], captures.Positional[1]

		data, err := u.Data()
		if err != nil {
			return err
		}
		if err := data.Set(key, value); err != nil {
			return err
		}
		return msg.ReplyToUser(ctx, fmt.Sprintf("Done. I set %s to %s", key, value))
	}); err != nil {
		return err
	}

	return u.Respond(`what is ([^ ?]+)\??$`, func(ctx context.Context, msg *message.Message, captures unit.Captures) error {
		key := captures.Positional[0]
		value, found, err := lookup(u, key)
		if err != nil {
			return err
		}
		if !found {
			return msg.ReplyToUser(ctx, fmt.Sprintf("I don't know what %s is", key))
		}
		return msg.ReplyToUser(ctx, fmt.Sprintf("%s is %s", key, value))
	})
}

func lookup(u *unit.Unit, key string) (string, bool, error) {
	data, err := u.Data()
	if err != nil {
		return "", false, err
	}

	var value string
	found, err := data.Get(key, &value)
	return value, found, err
}

func notify(ctx context.Context, u *unit.Unit) {
	channel, err := u.Opts().String("notify_channel")
	if err != nil || channel == "" {
		return
	}
	if err := u.SendMessage(ctx, channel, "i got a request"); err != nil {
		u.Logger().Warn("Failed to announce web request", "channel", channel, "error", err)
	}
}
