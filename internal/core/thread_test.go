package core

import (
	"testing"
	"time"
)

func TestMessageCommitted(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"user", Message{Role: RoleUser, Content: "hi"}, true},
		{"empty user", Message{Role: RoleUser}, true},
		{"assistant", Message{Role: RoleAssistant, Content: "hello"}, true},
		{"placeholder", Message{Role: RoleAssistant}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Committed(); got != tt.want {
				t.Errorf("Committed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThreadKeyString(t *testing.T) {
	if got := (ThreadKey{AgentID: "assistant"}).String(); got != "assistant" {
		t.Errorf("got %q", got)
	}
	if got := (ThreadKey{AgentID: "tutor", ContextID: "w1"}).String(); got != "tutor:w1" {
		t.Errorf("got %q", got)
	}
}

func TestThreadReplaceDropsPlaceholders(t *testing.T) {
	th := NewThread(ThreadKey{AgentID: "assistant"})
	ok := th.Replace(&History{
		Messages: []Message{
			userAt("hi", t0),
			{Role: RoleAssistant},
			assistantAt("hello", t0.Add(time.Second)),
		},
		LastReadAt:   t0,
		IsNewSession: true,
	})
	if !ok {
		t.Fatal("Replace returned false on idle thread")
	}
	if th.MessageCount() != 2 {
		t.Fatalf("expected 2 messages, got %d", th.MessageCount())
	}
	if !th.IsNewSession() {
		t.Error("expected new session flag")
	}
	if !th.Unread() {
		t.Error("expected unread: assistant reply is after lastReadAt")
	}
}

func TestThreadReplaceIgnoredWhileGenerating(t *testing.T) {
	th := NewThread(ThreadKey{AgentID: "assistant"})
	if !th.beginGeneration([]Message{userAt("hi", t0)}) {
		t.Fatal("beginGeneration failed")
	}
	if th.Replace(&History{}) {
		t.Fatal("Replace must not clobber a live generation")
	}
	if th.MessageCount() != 1 {
		t.Fatalf("expected 1 message, got %d", th.MessageCount())
	}
	if th.beginGeneration(nil) {
		t.Fatal("second beginGeneration must fail while generating")
	}
}

func TestThreadLastReadAtMonotonic(t *testing.T) {
	th := NewThread(ThreadKey{AgentID: "assistant"})
	th.SetLastReadAt(t0.Add(time.Minute))
	th.SetLastReadAt(t0)
	if !th.LastReadAt().Equal(t0.Add(time.Minute)) {
		t.Errorf("lastReadAt moved backwards to %v", th.LastReadAt())
	}

	th.Replace(&History{LastReadAt: t0})
	if !th.LastReadAt().Equal(t0.Add(time.Minute)) {
		t.Errorf("history load moved lastReadAt backwards to %v", th.LastReadAt())
	}
}

func TestThreadFinishGeneration(t *testing.T) {
	th := NewThread(ThreadKey{AgentID: "assistant"})
	th.beginGeneration([]Message{userAt("hi", t0)})
	th.appendChunk("Hel")

	buf, streaming := th.Buffer()
	if buf != "Hel" || !streaming {
		t.Fatalf("buffer = %q streaming=%v", buf, streaming)
	}

	if th.finishGeneration(&Message{Role: RoleAssistant}) {
		t.Fatal("placeholder must not be committed")
	}
	if _, streaming := th.Buffer(); streaming {
		t.Error("buffer should be cleared")
	}
	if th.Generating() {
		t.Error("generating should be cleared")
	}
	if th.MessageCount() != 1 {
		t.Errorf("expected 1 message, got %d", th.MessageCount())
	}
}

func TestConversationStore(t *testing.T) {
	s := NewConversationStore()
	key := ThreadKey{AgentID: "tutor", ContextID: "w1"}

	a := s.Open(key)
	b := s.Open(key)
	if a != b {
		t.Fatal("Open must return the same thread for a key")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 thread, got %d", s.Len())
	}

	s.Discard(key)
	if _, ok := s.Get(key); ok {
		t.Fatal("thread should be discarded")
	}
}

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobPending, JobProcessing, true},
		{JobPending, JobCompleted, true},
		{JobProcessing, JobProcessing, true},
		{JobProcessing, JobFailed, true},
		{JobProcessing, JobPending, false},
		{JobCompleted, JobFailed, false},
		{JobFailed, JobProcessing, false},
		{JobProcessing, JobStatus("bogus"), false},
	}
	for _, tt := range tests {
		if got := tt.from.CanAdvance(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	job := &GenerationJob{ID: "j1", Status: JobProcessing}
	if err := job.Advance(JobCompleted, "article"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := job.Advance(JobProcessing, ""); err == nil {
		t.Fatal("expected error leaving a terminal state")
	}
	if job.Content != "article" {
		t.Errorf("content = %q", job.Content)
	}
}
