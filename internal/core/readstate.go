package core

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/tutorline/internal/constants"
	"golang.org/x/sync/singleflight"
)

// ComputeUnread reports whether the newest message is an assistant turn
// stamped strictly after lastReadAt. A message without a timestamp is
// never unread.
func ComputeUnread(msgs []Message, lastReadAt time.Time) bool {
	if len(msgs) == 0 {
		return false
	}
	latest := msgs[len(msgs)-1]
	if latest.Role != RoleAssistant || !latest.Committed() || !latest.HasTimestamp() {
		return false
	}
	return latest.CreatedAt.After(lastReadAt)
}

// ReadSync marks threads read on the server and announces the change.
type ReadSync struct {
	marker ReadMarker
	bus    *EventBus
	group  singleflight.Group
	now    func() time.Time
}

// NewReadSync creates a synchronizer.
func NewReadSync(marker ReadMarker, bus *EventBus) *ReadSync {
	return &ReadSync{
		marker: marker,
		bus:    bus,
		now:    time.Now,
	}
}

// MarkRead marks thread read. It is idempotent: an already-read thread
// succeeds without a network call or an event. Failures are logged and
// reported as false; the next visibility change retries.
func (r *ReadSync) MarkRead(ctx context.Context, thread *Thread) bool {
	if !thread.Unread() {
		return true
	}

	key := thread.Key()
	_, err, _ := r.group.Do(key.String(), func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, constants.MarkReadTimeout)
		defer cancel()
		return nil, r.marker.MarkRead(callCtx, key)
	})
	if err != nil {
		log.Warn().Err(err).Str("thread", key.String()).Msg("mark read failed")
		return false
	}

	readAt := r.now().UTC()
	if latest, ok := thread.Latest(); ok && latest.CreatedAt.After(readAt) {
		// Server clocks can run ahead of ours.
		readAt = latest.CreatedAt
	}
	thread.SetLastReadAt(readAt)

	if r.bus != nil {
		r.bus.Publish(Event{Type: EventReadStateChanged, Source: key.String()})
	}
	return true
}
