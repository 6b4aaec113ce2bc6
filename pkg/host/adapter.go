package host

import (
	"fmt"
	"log/slog"
	"strings"

	"jeev/pkg/config"
	"jeev/pkg/transport"
	"jeev/pkg/transport/console"
	"jeev/pkg/transport/telegram"
)

const (
	consoleAdapterName  = "console"
	telegramAdapterName = "telegram"
)

// AdapterNames lists the transports selectable with the adapter setting.
var AdapterNames = []string{consoleAdapterName, telegramAdapterName}

func newAdapter(cfg *config.Config, log *slog.Logger) (transport.Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Adapter)) {
	case "", consoleAdapterName:
		return console.NewAdapter(cfg.Console, cfg.Name, log), nil
	case telegramAdapterName:
		adapter, err := telegram.NewAdapter(cfg.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s transport: %w", telegramAdapterName, err)
		}
		return adapter, nil
	default:
		return nil, fmt.Errorf("unsupported adapter %q (want one of %s)", cfg.Adapter, strings.Join(AdapterNames, ", "))
	}
}
