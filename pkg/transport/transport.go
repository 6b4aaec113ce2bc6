package transport

import (
	"context"

	"jeev/pkg/message"
)

// Handler receives each inbound message. It must not block for long; the
// host queues the message and returns.
type Handler func(ctx context.Context, msg *message.Message)

// Adapter bridges one chat transport into the host.
type Adapter interface {
	Name() string
	// Start connects and begins delivering messages to handler. It returns
	// once the transport is running.
	Start(ctx context.Context, handler Handler) error
	Stop() error
	SendMessage(ctx context.Context, channel string, text string) error
}

// Joiner is implemented by adapters that can block until they stop.
type Joiner interface {
	Join(ctx context.Context) error
}

// AttachmentSender is implemented by adapters that render attachments.
type AttachmentSender interface {
	SendAttachment(ctx context.Context, channel string, attachments ...message.Attachment) error
}

// Capabilities records which optional interfaces an adapter implements.
type Capabilities struct {
	Joiner      Joiner
	Attachments AttachmentSender
}

// Detect inspects adapter once for optional capabilities.
func Detect(adapter Adapter) Capabilities {
	var caps Capabilities
	if joiner, ok := adapter.(Joiner); ok {
		caps.Joiner = joiner
	}
	if sender, ok := adapter.(AttachmentSender); ok {
		caps.Attachments = sender
	}
	return caps
}
