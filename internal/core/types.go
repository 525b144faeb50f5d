// Package core provides the conversation streaming and read-state engine
// shared by every chat surface.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a thread. A zero CreatedAt means the timestamp is absent.
type Message struct {
	Role      Role
	Content   string
	CreatedAt time.Time
	// Local marks a reply committed from a stream on this client. Its
	// CreatedAt is the client clock, not the server's.
	Local bool
}

// Committed reports whether the message is a real turn rather than a
// transient assistant placeholder.
func (m Message) Committed() bool {
	return !(m.Role == RoleAssistant && m.Content == "")
}

// HasTimestamp reports whether CreatedAt is present.
func (m Message) HasTimestamp() bool {
	return !m.CreatedAt.IsZero()
}

// Identity returns a stable identifier derived from the timestamp.
// Messages without a timestamp have no identity.
func (m Message) Identity() (string, bool) {
	if !m.HasTimestamp() {
		return "", false
	}
	return m.CreatedAt.UTC().Format(time.RFC3339Nano), true
}

// ThreadKey identifies a conversation: an agent plus an optional context
// such as a webinar or news id.
type ThreadKey struct {
	AgentID   string
	ContextID string
}

func (k ThreadKey) String() string {
	if k.ContextID == "" {
		return k.AgentID
	}
	return k.AgentID + ":" + k.ContextID
}

// History is what the history endpoint returns for a thread.
type History struct {
	Messages     []Message
	LastReadAt   time.Time
	IsNewSession bool
}

// JobStatus is the state of an async content generation job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// ErrBackwardTransition is returned when a job status would move backwards.
var ErrBackwardTransition = errors.New("backward job status transition")

func (s JobStatus) rank() int {
	switch s {
	case JobPending:
		return 0
	case JobProcessing:
		return 1
	case JobCompleted, JobFailed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	return s.rank() >= 0
}

// CanAdvance reports whether moving from s to next is allowed.
// Staying in place is allowed for non-terminal states.
func (s JobStatus) CanAdvance(next JobStatus) bool {
	if !next.Valid() {
		return false
	}
	if s.Terminal() {
		return false
	}
	return next.rank() >= s.rank()
}

// GenerationJob is an async content generation job.
type GenerationJob struct {
	ID      string
	Status  JobStatus
	Content string
}

// Advance moves the job forward to next, keeping content when it arrives.
func (j *GenerationJob) Advance(next JobStatus, content string) error {
	if !j.Status.CanAdvance(next) {
		return fmt.Errorf("%w: %s -> %s", ErrBackwardTransition, j.Status, next)
	}
	j.Status = next
	if content != "" {
		j.Content = content
	}
	return nil
}

// KV is a small persistent key-value store for client-side markers.
// Missing keys report ok=false with a nil error.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// prefixDeleter is implemented by KV stores that can drop a key range.
type prefixDeleter interface {
	DeletePrefix(prefix string) error
}

// HistoryLoader fetches a thread's history.
type HistoryLoader interface {
	History(ctx context.Context, key ThreadKey) (*History, error)
}

// ReadMarker marks a thread read on the server.
type ReadMarker interface {
	MarkRead(ctx context.Context, key ThreadKey) error
}

// JobFetcher queries async job status.
type JobFetcher interface {
	JobStatus(ctx context.Context, id string) (*GenerationJob, error)
}

// ContentFetcher performs the first read of async content.
type ContentFetcher interface {
	Content(ctx context.Context, id string) (*GenerationJob, error)
}

// Backend bundles the platform endpoints a Hub needs.
type Backend interface {
	HistoryLoader
	ReadMarker
	JobFetcher
	ContentFetcher
}

// EventType identifies the kind of event. The set is closed.
type EventType string

const (
	// EventReadStateChanged: unread status or committed messages changed
	// somewhere. Subscribers re-derive their own state.
	EventReadStateChanged EventType = "read_state_changed"
	// EventGenerationStatusChanged: a generation started or finished, or an
	// async job reached a terminal state.
	EventGenerationStatusChanged EventType = "generation_status_changed"
)

// Valid reports whether t is one of the known event kinds.
func (t EventType) Valid() bool {
	return t == EventReadStateChanged || t == EventGenerationStatusChanged
}

// Event is a payload-free signal. Source names the publisher for logging
// only; subscribers must not treat it as authoritative.
type Event struct {
	Type      EventType
	Source    string
	Timestamp time.Time
}
