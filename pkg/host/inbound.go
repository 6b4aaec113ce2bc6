package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jeev/pkg/bus"
	"jeev/pkg/message"
	"jeev/pkg/storage"
)

// handleInbound is the transport callback. It only queues the message so
// the transport is never blocked by unit handlers.
func (h *Host) handleInbound(ctx context.Context, msg *message.Message) {
	if msg == nil {
		return
	}

	if !h.bus.PublishInbound(ctx, msg) {
		h.log.Warn("Dropped inbound message", "channel", msg.Channel, "user", msg.User, "message_id", msg.ID)
		return
	}

	h.bus.PublishEvent(ctx, bus.Event{
		Type:      bus.EventMessageReceived,
		Channel:   msg.Channel,
		User:      msg.User,
		MessageID: msg.ID,
	})
}

// consume drains the inbound queue and dispatches every message on its own
// task, so a slow unit never delays the next message.
func (h *Host) consume(ctx context.Context) (any, error) {
	for {
		msg, ok := h.bus.ConsumeInbound(ctx)
		if !ok {
			return nil, nil
		}

		if _, err := h.tasks.Spawn(func(taskCtx context.Context) (any, error) {
			h.dispatch(taskCtx, msg)
			return nil, nil
		}); err != nil {
			return nil, nil
		}
	}
}

func (h *Host) dispatch(ctx context.Context, msg *message.Message) {
	routed := msg.Route(h, h.Targeting(msg.Text))

	started := time.Now()
	h.registry.Dispatch(ctx, routed)
	elapsed := time.Since(started)

	h.log.Debug("Message dispatched",
		"channel", routed.Channel,
		"user", routed.User,
		"targeting", routed.Targeting,
		"message_id", routed.ID,
		"duration_ms", elapsed.Milliseconds(),
	)
	h.bus.PublishEvent(ctx, bus.Event{
		Type:      bus.EventMessageDispatched,
		Channel:   routed.Channel,
		User:      routed.User,
		MessageID: routed.ID,
		Payload:   map[string]string{"duration": elapsed.String()},
	})
}

func (h *Host) SendMessage(ctx context.Context, channel string, text string) error {
	if err := h.adapter.SendMessage(ctx, channel, text); err != nil {
		return fmt.Errorf("send to %q via %s: %w", channel, h.adapter.Name(), err)
	}
	return nil
}

// SendAttachment renders attachments natively when the transport supports
// them and otherwise sends each attachment's fallback text.
func (h *Host) SendAttachment(ctx context.Context, channel string, attachments ...message.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}

	if h.caps.Attachments != nil {
		if err := h.caps.Attachments.SendAttachment(ctx, channel, attachments...); err != nil {
			return fmt.Errorf("send attachment to %q via %s: %w", channel, h.adapter.Name(), err)
		}
		return nil
	}

	var errs []error
	for _, attachment := range attachments {
		if attachment.Fallback == "" {
			continue
		}
		if err := h.SendMessage(ctx, channel, attachment.Fallback); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Host) OpenData(unitName string) (storage.Handle, error) {
	return h.backend.Open(unitName)
}

// ReportError logs a failure raised inside a unit and publishes it as a
// unit_error event.
func (h *Host) ReportError(unitName string, err error) {
	if err == nil {
		return
	}

	h.log.Error("Unit error", "unit", unitName, "error", err)
	h.bus.PublishEvent(context.Background(), bus.Event{
		Type:  bus.EventUnitError,
		Unit:  unitName,
		Error: err.Error(),
	})
}

func (h *Host) UnitLoaded(name string) {
	h.bus.PublishEvent(context.Background(), bus.Event{Type: bus.EventUnitLoaded, Unit: name})
}

func (h *Host) UnitUnloaded(name string) {
	h.bus.PublishEvent(context.Background(), bus.Event{Type: bus.EventUnitUnloaded, Unit: name})
}
