package core

import (
	"context"
	"sync"
)

// Inbox aggregates unread state across mounted surfaces for the
// notification bell. It re-derives from the threads on every
// read_state_changed event and never writes anything back.
type Inbox struct {
	hub    *Hub
	bus    *EventBus
	events <-chan Event

	mu    sync.RWMutex
	count int
	keys  []ThreadKey

	changes chan struct{}
}

// NewInbox subscribes to read_state_changed. Call Run to start processing.
func NewInbox(hub *Hub, bus *EventBus) *Inbox {
	return &Inbox{
		hub:     hub,
		bus:     bus,
		events:  bus.Subscribe(EventReadStateChanged),
		changes: make(chan struct{}, 1),
	}
}

// Run processes events until ctx is done or the bus closes.
func (i *Inbox) Run(ctx context.Context) {
	defer i.bus.Unsubscribe(i.events)
	i.Recount()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-i.events:
			if !ok {
				return
			}
			i.Recount()
		}
	}
}

// Recount re-derives the unread set and reports whether it changed.
func (i *Inbox) Recount() bool {
	var keys []ThreadKey
	for _, s := range i.hub.List() {
		if s.Unread() {
			keys = append(keys, s.Key())
		}
	}

	i.mu.Lock()
	changed := !sameKeys(i.keys, keys)
	i.keys = keys
	i.count = len(keys)
	i.mu.Unlock()

	if changed {
		select {
		case i.changes <- struct{}{}:
		default:
		}
	}
	return changed
}

// UnreadCount returns the number of unread threads.
func (i *Inbox) UnreadCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.count
}

// UnreadKeys returns the unread threads in mount order.
func (i *Inbox) UnreadKeys() []ThreadKey {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]ThreadKey, len(i.keys))
	copy(out, i.keys)
	return out
}

// Changes signals after the unread set changes.
func (i *Inbox) Changes() <-chan struct{} {
	return i.changes
}

func sameKeys(a, b []ThreadKey) bool {
	if len(a) != len(b) {
		return false
	}
	for n := range a {
		if a[n] != b[n] {
			return false
		}
	}
	return true
}
