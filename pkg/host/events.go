package host

import (
	"context"
	"log/slog"
	"time"

	"jeev/pkg/bus"
)

const eventBuffer = 64

// observeEvents logs host events until ctx ends.
func (h *Host) observeEvents(ctx context.Context) (any, error) {
	log := h.root.With("component", "bus.events")
	events, unsubscribe := h.bus.SubscribeEvents(ctx, eventBuffer)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case event, ok := <-events:
			if !ok {
				return nil, nil
			}
			logEvent(log, event)
		}
	}
}

func logEvent(log *slog.Logger, event bus.Event) {
	attrs := []any{
		"event_type", event.Type,
		"timestamp", event.At.UTC().Format(time.RFC3339Nano),
	}
	if event.Unit != "" {
		attrs = append(attrs, "unit", event.Unit)
	}
	if event.MessageID != "" {
		attrs = append(attrs, "message_id", event.MessageID, "channel", event.Channel, "user", event.User)
	}
	if len(event.Payload) > 0 {
		attrs = append(attrs, "payload", event.Payload)
	}

	switch event.Type {
	case bus.EventUnitError:
		// ReportError already logged the failure at error level.
		log.Debug("Host event", append(attrs, "error", event.Error)...)
	case bus.EventUnitLoaded, bus.EventUnitUnloaded:
		log.Info("Host event", attrs...)
	default:
		log.Debug("Host event", attrs...)
	}
}
