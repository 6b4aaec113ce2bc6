package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventUnitLoaded        EventType = "unit_loaded"
	EventUnitUnloaded      EventType = "unit_unloaded"
	EventUnitError         EventType = "unit_error"
	EventMessageReceived   EventType = "message_received"
	EventMessageDispatched EventType = "message_dispatched"
)

type Event struct {
	Type      EventType         `json:"type"`
	At        time.Time         `json:"at"`
	Unit      string            `json:"unit,omitempty"`
	Channel   string            `json:"channel,omitempty"`
	User      string            `json:"user,omitempty"`
	MessageID string            `json:"message_id,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// PublishEvent fans event out to every subscriber without blocking. A
// subscriber whose buffer is full misses the event; see DroppedEvents.
func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	if mb.stopped(ctx) {
		return false
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	mb.mu.RLock()
	subs := make([]chan Event, 0, len(mb.eventSubscribers))
	for _, ch := range mb.eventSubscribers {
		subs = append(subs, ch)
	}
	mb.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			mb.droppedEvents.Add(1)
		}
	}

	return true
}

// DroppedEvents counts deliveries skipped because a subscriber was full.
func (mb *MessageBus) DroppedEvents() uint64 {
	return mb.droppedEvents.Load()
}

func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := mb.nextEventSubscriberID
	mb.nextEventSubscriberID++
	mb.eventSubscribers[id] = ch
	mb.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			if eventCh, ok := mb.eventSubscribers[id]; ok {
				delete(mb.eventSubscribers, id)
				close(eventCh)
			}
			mb.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}
