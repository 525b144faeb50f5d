package core

import (
	"strings"
	"sync"
	"time"
)

// Thread is the in-memory state of one conversation.
type Thread struct {
	mu sync.RWMutex

	key          ThreadKey
	messages     []Message
	lastReadAt   time.Time
	isNewSession bool

	// buffer holds the in-progress assistant reply; streaming reports
	// whether a buffer is present at all.
	buffer     strings.Builder
	streaming  bool
	generating bool
}

// NewThread creates an empty thread.
func NewThread(key ThreadKey) *Thread {
	return &Thread{key: key}
}

// Key returns the thread key.
func (t *Thread) Key() ThreadKey {
	return t.key
}

// Messages returns a copy of the committed message list.
func (t *Thread) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// MessageCount returns the number of messages.
func (t *Thread) MessageCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Latest returns the newest message.
func (t *Thread) Latest() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// LastReadAt returns when the thread was last read.
func (t *Thread) LastReadAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastReadAt
}

// SetLastReadAt updates the read watermark. It never moves backwards.
func (t *Thread) SetLastReadAt(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if at.After(t.lastReadAt) {
		t.lastReadAt = at
	}
}

// IsNewSession reports the flag from the last history load.
func (t *Thread) IsNewSession() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isNewSession
}

// Unread derives unread status from the current state.
func (t *Thread) Unread() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ComputeUnread(t.messages, t.lastReadAt)
}

// Buffer returns the streaming buffer and whether one is active.
func (t *Thread) Buffer() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.buffer.String(), t.streaming
}

// Generating reports whether a generation is in flight.
func (t *Thread) Generating() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generating
}

// ThreadSnapshot is a consistent copy of a thread's state.
type ThreadSnapshot struct {
	Key        ThreadKey
	Messages   []Message
	LastReadAt time.Time
	Buffer     string
	Streaming  bool
	Generating bool
	Unread     bool
}

// Snapshot returns a consistent copy of the thread.
func (t *Thread) Snapshot() ThreadSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	msgs := make([]Message, len(t.messages))
	copy(msgs, t.messages)
	return ThreadSnapshot{
		Key:        t.key,
		Messages:   msgs,
		LastReadAt: t.lastReadAt,
		Buffer:     t.buffer.String(),
		Streaming:  t.streaming,
		Generating: t.generating,
		Unread:     ComputeUnread(t.messages, t.lastReadAt),
	}
}

// Replace loads a history wholesale. It is ignored while a generation is
// in flight so a late history response cannot clobber a live stream.
func (t *Thread) Replace(h *History) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.generating {
		return false
	}
	t.messages = committedOnly(h.Messages)
	if h.LastReadAt.After(t.lastReadAt) {
		t.lastReadAt = h.LastReadAt
	}
	t.isNewSession = h.IsNewSession
	return true
}

// beginGeneration claims the single-flight slot and installs history as
// the message list. It returns false when a generation is already running.
func (t *Thread) beginGeneration(history []Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.generating {
		return false
	}
	t.generating = true
	t.messages = committedOnly(history)
	t.buffer.Reset()
	t.streaming = true
	return true
}

// appendChunk adds streamed text to the buffer.
func (t *Thread) appendChunk(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buffer.WriteString(text)
}

// finishGeneration clears the buffer and the in-flight flag, committing msg
// when it is a real turn. It returns whether a message was committed.
func (t *Thread) finishGeneration(msg *Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buffer.Reset()
	t.streaming = false
	t.generating = false
	if msg == nil || !msg.Committed() {
		return false
	}
	t.messages = append(t.messages, *msg)
	return true
}

func committedOnly(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Committed() {
			out = append(out, m)
		}
	}
	return out
}

// ConversationStore owns the live threads, one per key.
type ConversationStore struct {
	mu      sync.Mutex
	threads map[ThreadKey]*Thread
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{threads: make(map[ThreadKey]*Thread)}
}

// Open returns the thread for key, creating it on first use.
func (s *ConversationStore) Open(key ThreadKey) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[key]
	if !ok {
		t = NewThread(key)
		s.threads[key] = t
	}
	return t
}

// Get returns the thread for key if it is live.
func (s *ConversationStore) Get(key ThreadKey) (*Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[key]
	return t, ok
}

// Discard drops a thread when its surface unmounts.
func (s *ConversationStore) Discard(key ThreadKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, key)
}

// Len returns the number of live threads.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}
