package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/xonecas/tutorline/internal/core"
)

func assistantAt(content string) core.Message {
	return core.Message{Role: core.RoleAssistant, Content: content, CreatedAt: testTime}
}

func userAt(content string) core.Message {
	return core.Message{Role: core.RoleUser, Content: content, CreatedAt: testTime.Add(-time.Minute)}
}

func TestModelListsMountedSurfaces(t *testing.T) {
	env := newTestEnv(t)
	env.open(t, core.ThreadKey{AgentID: "assistant"}, "Assistant", userAt("hi"), assistantAt("hello"))
	env.open(t, core.ThreadKey{AgentID: "coach", ContextID: "w1"}, "Webinar coach")

	m := env.model(t)
	if len(m.surfaces) != 2 {
		t.Fatalf("surfaces = %d, want 2", len(m.surfaces))
	}

	out := stripANSI(m.View())
	for _, want := range []string{"Assistant", "Webinar coach", "hello"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModelNavigation(t *testing.T) {
	env := newTestEnv(t)
	env.open(t, core.ThreadKey{AgentID: "a"}, "A")
	env.open(t, core.ThreadKey{AgentID: "b"}, "B")

	m := env.model(t)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if m.selectedIdx != 1 {
		t.Fatalf("selectedIdx = %d, want 1", m.selectedIdx)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if m.selectedIdx != 1 {
		t.Errorf("selectedIdx moved past the end: %d", m.selectedIdx)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if m.selectedIdx != 0 {
		t.Errorf("selectedIdx = %d, want 0", m.selectedIdx)
	}
}

func TestModelFocusMarksRead(t *testing.T) {
	env := newTestEnv(t)
	key := core.ThreadKey{AgentID: "assistant"}
	s := env.open(t, key, "Assistant", userAt("hi"), assistantAt("hello"))
	if !s.Unread() {
		t.Fatal("expected thread to start unread")
	}

	m := env.model(t)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if m.view != ViewFocus || m.focusKey != key {
		t.Fatalf("view = %v focus = %v, want focus on %v", m.view, m.focusKey, key)
	}
	if cmd == nil {
		t.Fatal("expected a focus command")
	}
	m = update(t, m, cmd())

	if !s.Foreground() {
		t.Error("session should be foreground after focusing")
	}
	if s.Unread() {
		t.Error("focusing should mark the thread read")
	}
	if m.err != nil {
		t.Errorf("unexpected error: %v", m.err)
	}
	if !strings.Contains(stripANSI(m.View()), "hello") {
		t.Error("focus view should show the conversation")
	}

	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	if m.view != ViewSurfaces {
		t.Errorf("view = %v after esc, want surfaces", m.view)
	}
	update(t, m, cmd())
	if s.Foreground() {
		t.Error("esc should blur the surface")
	}
}

func TestModelSendMessage(t *testing.T) {
	env := newTestEnv(t)
	key := core.ThreadKey{AgentID: "assistant"}
	s := env.open(t, key, "Assistant")

	m := env.model(t)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = update(t, next.(Model), cmd())

	m = update(t, m, runes("m"))
	if m.input.Mode() != InputModeMessage {
		t.Fatalf("input mode = %v, want message", m.input.Mode())
	}
	m = update(t, m, runes("What is Go?"))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.input.IsActive() {
		t.Error("input should reset after sending")
	}
	s.Wait()

	msgs := s.Snapshot().Messages
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "What is Go?" || msgs[1].Content != "Sure!" {
		t.Errorf("messages = %+v", msgs)
	}
	if env.gen.Calls() != 1 {
		t.Errorf("generator calls = %d, want 1", env.gen.Calls())
	}
}

func TestModelBlankMessageIgnored(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t, core.ThreadKey{AgentID: "assistant"}, "Assistant")

	m := env.model(t)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = update(t, next.(Model), cmd())
	m = update(t, m, runes("m"))
	m = update(t, m, runes("   "))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if n := len(s.Snapshot().Messages); n != 0 {
		t.Errorf("messages = %d, want 0", n)
	}
	if env.gen.Calls() != 0 {
		t.Error("blank input must not reach the generator")
	}
}

func TestModelResendWithoutTrailingUserTurn(t *testing.T) {
	env := newTestEnv(t)
	env.open(t, core.ThreadKey{AgentID: "assistant"}, "Assistant", userAt("hi"), assistantAt("hello"))

	m := env.model(t)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = update(t, next.(Model), cmd())
	m = update(t, m, runes("r"))

	if m.err == nil {
		t.Error("expected an error when nothing needs resending")
	}
	if env.gen.Calls() != 0 {
		t.Errorf("generator calls = %d, want 0", env.gen.Calls())
	}
}

func TestModelOpenContent(t *testing.T) {
	env := newTestEnv(t)
	env.backend.content["lesson-1"] = &core.GenerationJob{ID: "lesson-1", Status: core.JobCompleted, Content: "# Lesson"}

	m := env.model(t)
	m = update(t, m, runes("o"))
	if m.input.Mode() != InputModeContent {
		t.Fatalf("input mode = %v, want content", m.input.Mode())
	}
	m = update(t, m, runes("lesson-1"))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.view != ViewContent {
		t.Fatalf("view = %v, want content", m.view)
	}
	if m.loader == nil {
		t.Fatal("expected a content loader")
	}
	if err := m.loader.Load(m.ctx, "lesson-1"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m = update(t, m, m.listenForContent()())
	m = update(t, m, m.listenForContent()())
	if m.content.State != core.ContentReady {
		t.Fatalf("content state = %v, want ready", m.content.State)
	}
	if !strings.Contains(stripANSI(m.View()), "Lesson") {
		t.Error("content view should show the body")
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.view != ViewSurfaces || m.loader != nil {
		t.Error("esc should close the content view")
	}
}

func TestModelHelpToggle(t *testing.T) {
	env := newTestEnv(t)
	m := env.model(t)

	m = update(t, m, runes("?"))
	if !m.showHelp {
		t.Fatal("? should open help")
	}
	if !strings.Contains(stripANSI(m.View()), "Keyboard Shortcuts") {
		t.Error("help overlay not rendered")
	}
	m = update(t, m, runes("x"))
	if m.showHelp {
		t.Error("any key should close help")
	}
}

func TestModelQuit(t *testing.T) {
	env := newTestEnv(t)
	m := env.model(t)

	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
