package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"jeev/pkg/message"
)

const defaultBufferSize = 100

// MessageBus queues inbound chat messages between transports and the host
// and fans host lifecycle events out to subscribers.
type MessageBus struct {
	inbound chan *message.Message

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64
	droppedEvents         atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return NewMessageBusWithBuffer(defaultBufferSize)
}

// NewMessageBusWithBuffer sizes the inbound queue. Non-positive sizes use
// the default.
func NewMessageBusWithBuffer(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}

	return &MessageBus{
		inbound:          make(chan *message.Message, size),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

// PublishInbound queues msg for the host. It blocks while the queue is full
// and reports false once ctx ends or the bus closes.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg *message.Message) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	if msg == nil || mb.stopped(ctx) {
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.inbound <- msg:
		return true
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (*message.Message, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return nil, false
	case <-mb.done:
		return nil, false
	case msg := <-mb.inbound:
		return msg, true
	}
}

func (mb *MessageBus) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-mb.done:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued inbound messages.
func (mb *MessageBus) Pending() int {
	return len(mb.inbound)
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}
