package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend serves canned platform responses.
type fakeBackend struct {
	mu sync.Mutex

	history     map[ThreadKey]*History
	historyErr  error
	historyHits int

	markReadErr  error
	markReadHits int

	jobs     []*GenerationJob
	jobErrs  []error
	jobCalls int

	content    *GenerationJob
	contentErr error
	// contentGate, when set, holds Content until closed. contentStarted
	// is closed when the first read begins.
	contentGate    chan struct{}
	contentStarted chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{history: make(map[ThreadKey]*History)}
}

func (b *fakeBackend) setHistory(key ThreadKey, h *History) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[key] = h
}

func (b *fakeBackend) History(ctx context.Context, key ThreadKey) (*History, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.historyHits++
	if b.historyErr != nil {
		return nil, b.historyErr
	}
	h, ok := b.history[key]
	if !ok {
		return &History{}, nil
	}
	cp := *h
	cp.Messages = append([]Message(nil), h.Messages...)
	return &cp, nil
}

func (b *fakeBackend) MarkRead(ctx context.Context, key ThreadKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markReadHits++
	return b.markReadErr
}

func (b *fakeBackend) markReads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.markReadHits
}

// JobStatus replays jobs in order, repeating the last one.
func (b *fakeBackend) JobStatus(ctx context.Context, id string) (*GenerationJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.jobCalls
	b.jobCalls++
	if n < len(b.jobErrs) && b.jobErrs[n] != nil {
		return nil, b.jobErrs[n]
	}
	if len(b.jobs) == 0 {
		return &GenerationJob{ID: id, Status: JobProcessing}, nil
	}
	if n >= len(b.jobs) {
		n = len(b.jobs) - 1
	}
	j := *b.jobs[n]
	return &j, nil
}

func (b *fakeBackend) jobQueries() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jobCalls
}

func (b *fakeBackend) Content(ctx context.Context, id string) (*GenerationJob, error) {
	if b.contentGate != nil {
		close(b.contentStarted)
		<-b.contentGate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.contentErr != nil {
		return nil, b.contentErr
	}
	if b.content == nil {
		return &GenerationJob{ID: id, Status: JobProcessing}, nil
	}
	j := *b.content
	return &j, nil
}

// failingKV fails every operation.
type failingKV struct{}

var (
	errKV         = errors.New("kv unavailable")
	errNoGenerate = errors.New("generate unavailable")
)

func (failingKV) Get(string) (string, bool, error) { return "", false, errKV }
func (failingKV) Set(string, string) error         { return errKV }

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func userAt(content string, at time.Time) Message {
	return Message{Role: RoleUser, Content: content, CreatedAt: at}
}

func assistantAt(content string, at time.Time) Message {
	return Message{Role: RoleAssistant, Content: content, CreatedAt: at}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// expectEvent waits for an event of kind t on ch.
func expectEvent(t *testing.T, ch <-chan Event, kind EventType) Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed waiting for %s", kind)
			}
			if e.Type == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s", kind)
		}
	}
}
