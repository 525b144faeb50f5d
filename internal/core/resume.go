package core

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xonecas/tutorline/internal/constants"
)

// messageNamespace seeds name-based ids for messages without timestamps.
var messageNamespace = uuid.MustParse("5d3c1f0e-7a44-4f1b-9c3e-2b8d6a0f4e71")

// ResumeCoordinator re-issues a generation for a thread whose history ends
// on an unanswered user turn, at most once per trailing message.
type ResumeCoordinator struct {
	// mu makes the marker check-and-set atomic within the process.
	mu       sync.Mutex
	markers  KV
	streamer *Streamer
}

// NewResumeCoordinator creates a coordinator persisting its markers in kv.
func NewResumeCoordinator(kv KV, streamer *Streamer) *ResumeCoordinator {
	return &ResumeCoordinator{markers: kv, streamer: streamer}
}

// TrailingMessageID returns a stable id for the last message in msgs: its
// timestamp when present, otherwise a name-based UUID of its position,
// role and content.
func TrailingMessageID(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	last := msgs[len(msgs)-1]
	if id, ok := last.Identity(); ok {
		return id
	}
	name := strconv.Itoa(len(msgs)-1) + "\x00" + string(last.Role) + "\x00" + last.Content
	return uuid.NewSHA1(messageNamespace, []byte(name)).String()
}

// markerKey is the KV key of the retry marker for a trailing message.
func markerKey(key ThreadKey, messageID string) string {
	return constants.RetryMarkerPrefix + key.String() + ":" + messageID
}

// markerPrefix covers every retry marker of one thread.
func markerPrefix(key ThreadKey) string {
	return constants.RetryMarkerPrefix + key.String() + ":"
}

// NeedsResume reports whether msgs ends on a user turn.
func NeedsResume(msgs []Message) bool {
	if len(msgs) == 0 {
		return false
	}
	return msgs[len(msgs)-1].Role == RoleUser
}

// Resume runs once after a thread's history is loaded. When the history
// ends on a user turn that has not been retried yet, it records the
// attempt and starts a recovery generation without re-persisting the turn.
// It returns (nil, false) when nothing was started.
func (r *ResumeCoordinator) Resume(ctx context.Context, thread *Thread) (<-chan Delta, bool) {
	history := thread.Messages()
	if !NeedsResume(history) {
		return nil, false
	}

	id := TrailingMessageID(history)
	key := markerKey(thread.Key(), id)
	logger := log.With().Str("thread", thread.Key().String()).Str("message_id", id).Logger()

	if !r.claim(key, logger) {
		return nil, false
	}

	ch, ok := r.streamer.Send(ctx, thread, history, false)
	if !ok {
		logger.Debug().Msg("resume skipped: generation already in flight")
		return nil, false
	}
	logger.Info().Msg("resuming interrupted conversation")
	return ch, true
}

// claim records the attempt for key and reports whether this caller owns it.
// The marker is written before any call is made so a second mount racing
// this one sees it.
func (r *ResumeCoordinator) claim(key string, logger zerolog.Logger) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, seen, err := r.markers.Get(key)
	if err != nil {
		logger.Warn().Err(err).Msg("resume skipped: marker read failed")
		return false
	}
	if seen {
		logger.Debug().Msg("resume skipped: already attempted")
		return false
	}
	if err := r.markers.Set(key, constants.RetryMarkerAttempted); err != nil {
		logger.Warn().Err(err).Msg("resume skipped: marker write failed")
		return false
	}
	return true
}

// ForgetThread drops every retry marker for key. Used when the server
// reports a new session.
func (r *ResumeCoordinator) ForgetThread(key ThreadKey) {
	pd, ok := r.markers.(prefixDeleter)
	if !ok {
		return
	}
	if err := pd.DeletePrefix(markerPrefix(key)); err != nil {
		log.Warn().Err(err).Str("thread", key.String()).Msg("failed to clear retry markers")
	}
}
