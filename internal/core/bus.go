package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/tutorline/internal/constants"
)

type subscription struct {
	ch    chan Event
	kinds map[EventType]bool
}

func (s *subscription) wants(t EventType) bool {
	return len(s.kinds) == 0 || s.kinds[t]
}

// EventBus distributes events to subscribers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []*subscription
	bufferSize  int
	closed      bool
}

// NewEventBus creates a new event bus.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize < constants.MinEventBusBufferSize {
		bufferSize = constants.MinEventBusBufferSize
	}
	return &EventBus{
		bufferSize: bufferSize,
	}
}

// Subscribe returns a channel that receives events of the given kinds, or
// every kind when none are given.
// The caller is responsible for reading from the channel to avoid blocking.
func (b *EventBus) Subscribe(kinds ...EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{ch: make(chan Event, b.bufferSize)}
	if len(kinds) > 0 {
		sub.kinds = make(map[EventType]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	b.subscribers = append(b.subscribers, sub)
	return sub.ch
}

// Unsubscribe removes a subscriber channel.
func (b *EventBus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.ch == ch {
			close(sub.ch)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all interested subscribers.
// Non-blocking: drops events if a subscriber's buffer is full.
func (b *EventBus) Publish(event Event) {
	if !event.Type.Valid() {
		log.Warn().Str("event_type", string(event.Type)).Msg("dropping unknown event kind")
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Drop event if buffer is full (non-blocking)
		}
	}
}

// PublishBlocking sends an event to all interested subscribers, waiting up
// to timeout per subscriber for buffer space. It reports whether every
// subscriber received the event.
func (b *EventBus) PublishBlocking(event Event, timeout time.Duration) bool {
	if !event.Type.Valid() {
		log.Warn().Str("event_type", string(event.Type)).Msg("dropping unknown event kind")
		return false
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := true
	for _, sub := range b.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		timer := time.NewTimer(timeout)
		select {
		case sub.ch <- event:
		case <-timer.C:
			delivered = false
		}
		timer.Stop()
	}
	return delivered
}

// Close closes all subscriber channels.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = nil
	b.closed = true
}

// publishCritical publishes with the bus timeout and logs when a subscriber lags.
func publishCritical(bus *EventBus, event Event) {
	if bus == nil {
		return
	}
	if bus.PublishBlocking(event, constants.EventBusPublishTimeout) {
		return
	}

	log.Warn().
		Str("event_type", string(event.Type)).
		Str("source", event.Source).
		Msg("event bus publish timeout")
}
