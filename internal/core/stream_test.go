package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xonecas/tutorline/internal/constants"
	"github.com/xonecas/tutorline/internal/provider"
)

func TestStreamerCommitsChunks(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()
	events := bus.Subscribe(EventGenerationStatusChanged)

	gen := provider.NewMock("mock", "Hel", "lo!")
	s := NewStreamer(gen, bus)
	th := NewThread(ThreadKey{AgentID: "tutor", ContextID: "w1"})

	ch, ok := s.Send(context.Background(), th, []Message{userAt("hi", t0)}, true)
	if !ok {
		t.Fatal("Send refused on idle thread")
	}

	var texts []string
	var final Delta
	for d := range ch {
		if d.Done {
			final = d
			continue
		}
		texts = append(texts, d.Text)
	}

	if strings.Join(texts, "") != "Hello!" {
		t.Errorf("deltas = %q", texts)
	}
	if final.Message == nil || final.Message.Content != "Hello!" {
		t.Fatalf("final message = %+v", final.Message)
	}
	if final.Message.Role != RoleAssistant || !final.Message.HasTimestamp() {
		t.Errorf("committed message = %+v", final.Message)
	}

	msgs := th.Messages()
	if len(msgs) != 2 || msgs[1].Content != "Hello!" {
		t.Fatalf("thread messages = %+v", msgs)
	}
	if _, streaming := th.Buffer(); streaming || th.Generating() {
		t.Error("thread should be idle after the stream ends")
	}

	reqs := gen.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if !reqs[0].PersistUserTurn {
		t.Error("expected persist_user_turn=true")
	}
	if reqs[0].Thread.AgentID != "tutor" || reqs[0].Thread.ContextID != "w1" {
		t.Errorf("thread context = %+v", reqs[0].Thread)
	}
	if len(reqs[0].History) != 1 || reqs[0].History[0].Content != "hi" {
		t.Errorf("history = %+v", reqs[0].History)
	}

	expectEvent(t, events, EventGenerationStatusChanged)
	expectEvent(t, events, EventGenerationStatusChanged)
}

func TestStreamerEmptyStreamCommitsNothing(t *testing.T) {
	s := NewStreamer(provider.NewMock("mock"), nil)
	th := NewThread(ThreadKey{AgentID: "assistant"})

	ch, _ := s.Send(context.Background(), th, []Message{userAt("hi", t0)}, true)
	final := drain(ch)

	if final.Message != nil {
		t.Fatalf("expected no committed message, got %+v", final.Message)
	}
	if th.MessageCount() != 1 {
		t.Errorf("expected only the user turn, got %d messages", th.MessageCount())
	}
}

func TestStreamerErrorCommitsOneSyntheticMessage(t *testing.T) {
	tests := []struct {
		name     string
		gen      *provider.MockGenerator
		contains string
	}{
		{
			name:     "start error",
			gen:      provider.NewMock("mock").WithStartError(errors.New("dial tcp: refused")),
			contains: constants.StreamErrorMessage,
		},
		{
			name:     "status error",
			gen:      provider.NewMock("mock").WithStartError(&provider.StatusError{Code: 502, Body: "bad gateway"}),
			contains: "502",
		},
		{
			name:     "mid-stream error",
			gen:      provider.NewMock("mock", "partial ").WithStreamError(errors.New("unexpected EOF")),
			contains: constants.StreamErrorMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStreamer(tt.gen, nil)
			th := NewThread(ThreadKey{AgentID: "assistant"})

			ch, _ := s.Send(context.Background(), th, []Message{userAt("hi", t0)}, true)
			final := drain(ch)

			if final.Err == nil {
				t.Error("expected final delta to carry the error")
			}
			msgs := th.Messages()
			if len(msgs) != 2 {
				t.Fatalf("expected user turn plus one error message, got %d", len(msgs))
			}
			if !strings.Contains(msgs[1].Content, tt.contains) {
				t.Errorf("error message %q does not contain %q", msgs[1].Content, tt.contains)
			}
			if strings.Contains(msgs[1].Content, "partial") {
				t.Error("partial buffer must be discarded")
			}
			if tt.gen.Calls() != 1 {
				t.Errorf("expected no retry, got %d calls", tt.gen.Calls())
			}
		})
	}
}

func TestStreamerSingleFlight(t *testing.T) {
	gate := make(chan struct{})
	gen := provider.NewMock("mock", "slow").WithGate(gate)
	s := NewStreamer(gen, nil)
	th := NewThread(ThreadKey{AgentID: "assistant"})

	ch, ok := s.Send(context.Background(), th, []Message{userAt("one", t0)}, true)
	if !ok {
		t.Fatal("first Send refused")
	}
	waitFor(t, "first chunk", func() bool {
		buf, _ := th.Buffer()
		return buf == "slow"
	})

	if _, ok := s.Send(context.Background(), th, []Message{userAt("two", t0)}, true); ok {
		t.Fatal("second Send must be a no-op while generating")
	}

	close(gate)
	final := drain(ch)
	if final.Message == nil || final.Message.Content != "slow" {
		t.Fatalf("final message = %+v", final.Message)
	}
	if gen.Calls() != 1 {
		t.Errorf("expected 1 generate call, got %d", gen.Calls())
	}
}

func TestStreamerCancellation(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	s := NewStreamer(provider.NewMock("mock", "abc").WithGate(gate), nil)
	th := NewThread(ThreadKey{AgentID: "assistant"})

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := s.Send(ctx, th, []Message{userAt("hi", t0)}, true)
	waitFor(t, "stream start", func() bool {
		buf, _ := th.Buffer()
		return buf != ""
	})
	cancel()

	done := make(chan struct{})
	go func() {
		drain(ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not end after cancel")
	}
	if th.Generating() {
		t.Error("generating flag left set after cancel")
	}
}
