package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/tutorline/internal/constants"
	"golang.org/x/sync/singleflight"
)

// Session is one mounted chat surface: a thread plus the components that
// stream into it, resume it, mark it read and alert on it.
type Session struct {
	title   string
	backend string

	thread   *Thread
	streamer *Streamer
	resume   *ResumeCoordinator
	readSync *ReadSync
	notifier *Notifier
	loader   HistoryLoader
	bus      *EventBus
	onUpdate func(ThreadKey)

	loads singleflight.Group

	// ctx bounds every generation started by the session; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	foreground bool
	closed     bool
}

// SessionDeps are the collaborators a Session is built from.
type SessionDeps struct {
	Title    string
	Backend  string
	Thread   *Thread
	Streamer *Streamer
	Resume   *ResumeCoordinator
	ReadSync *ReadSync
	Notifier *Notifier
	Loader   HistoryLoader
	Bus      *EventBus
	// OnUpdate is called whenever the thread's visible state changes,
	// including every streamed chunk. It must not block.
	OnUpdate func(ThreadKey)
}

// NewSession creates a session. It does not load history; call Load.
func NewSession(deps SessionDeps) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		title:    deps.Title,
		backend:  deps.Backend,
		thread:   deps.Thread,
		streamer: deps.Streamer,
		resume:   deps.Resume,
		readSync: deps.ReadSync,
		notifier: deps.Notifier,
		loader:   deps.Loader,
		bus:      deps.Bus,
		onUpdate: deps.OnUpdate,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Key returns the thread key.
func (s *Session) Key() ThreadKey {
	return s.thread.Key()
}

// Title returns the display title.
func (s *Session) Title() string {
	if s.title == "" {
		return s.thread.Key().String()
	}
	return s.title
}

// Backend returns the generator name serving this session.
func (s *Session) Backend() string {
	return s.backend
}

// Thread returns the underlying thread.
func (s *Session) Thread() *Thread {
	return s.thread
}

// Snapshot returns a consistent copy of the thread.
func (s *Session) Snapshot() ThreadSnapshot {
	return s.thread.Snapshot()
}

// Unread reports the derived unread status.
func (s *Session) Unread() bool {
	return s.thread.Unread()
}

// Foreground reports whether the surface is visible.
func (s *Session) Foreground() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.foreground
}

// TooltipVisible reports whether a background alert is showing.
func (s *Session) TooltipVisible() bool {
	return s.notifier.Visible()
}

// Load fetches history and replaces the thread contents, then gives the
// resume coordinator its one chance to recover an unanswered turn.
// Concurrent loads collapse into one request.
func (s *Session) Load(ctx context.Context) error {
	if s.isClosed() {
		return fmt.Errorf("load %s: %w", s.Key(), ErrSessionClosed)
	}

	key := s.Key()
	_, err, _ := s.loads.Do("history", func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, constants.HistoryRequestTimeout)
		defer cancel()
		h, err := s.loader.History(callCtx, key)
		if err != nil {
			return nil, err
		}
		s.apply(ctx, h)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("load history %s: %w", key, err)
	}
	return nil
}

func (s *Session) apply(ctx context.Context, h *History) {
	key := s.Key()
	if !s.thread.Replace(h) {
		log.Debug().Str("thread", key.String()).Msg("history ignored: generation in flight")
		return
	}
	if h.IsNewSession {
		s.resume.ForgetThread(key)
	}

	log.Debug().
		Str("thread", key.String()).
		Int("messages", s.thread.MessageCount()).
		Bool("new_session", h.IsNewSession).
		Msg("history loaded")

	s.changed()
	s.publish(EventReadStateChanged)

	if ch, ok := s.resume.Resume(s.ctx, s.thread); ok {
		s.consume(ch)
	}
	s.reconcile(ctx)
}

// Send appends a user turn and streams the reply. It reports false when
// text is blank or a generation is already running.
func (s *Session) Send(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || s.isClosed() {
		return false
	}

	history := append(s.thread.Messages(), Message{
		Role:      RoleUser,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	})
	ch, ok := s.streamer.Send(s.ctx, s.thread, history, true)
	if !ok {
		return false
	}
	s.changed()
	s.consume(ch)
	return true
}

// Resend asks for a reply to the trailing user turn again without
// re-persisting it. It reports false when the thread does not end on a
// user turn or a generation is already running.
func (s *Session) Resend() bool {
	if s.isClosed() {
		return false
	}
	history := s.thread.Messages()
	if !NeedsResume(history) {
		return false
	}
	ch, ok := s.streamer.Send(s.ctx, s.thread, history, false)
	if !ok {
		return false
	}
	log.Info().Str("thread", s.Key().String()).Msg("resending trailing user turn")
	s.changed()
	s.consume(ch)
	return true
}

// SetForeground records surface visibility. Becoming visible marks the
// thread read and clears any alert.
func (s *Session) SetForeground(ctx context.Context, foreground bool) {
	s.mu.Lock()
	changed := s.foreground != foreground
	s.foreground = foreground
	s.mu.Unlock()

	if changed {
		log.Debug().Str("thread", s.Key().String()).Bool("foreground", foreground).Msg("visibility changed")
	}
	if foreground {
		s.reconcile(ctx)
	}
}

// Close stops in-flight generations and waits for them to unwind.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.notifier.Stop()
}

// Wait blocks until every generation started so far has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) consume(ch <-chan Delta) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for d := range ch {
			s.changed()
			if d.Done && d.Message != nil {
				s.reconcile(s.ctx)
				s.publish(EventReadStateChanged)
			}
		}
	}()
}

// reconcile applies read-state and notification rules to the current
// thread contents.
func (s *Session) reconcile(ctx context.Context) {
	if s.Foreground() {
		s.readSync.MarkRead(ctx, s.thread)
		s.notifier.Evaluate(s.thread.Snapshot(), true)
	} else {
		s.notifier.Evaluate(s.thread.Snapshot(), false)
	}
	s.changed()
}

func (s *Session) changed() {
	if s.onUpdate != nil {
		s.onUpdate(s.Key())
	}
}

func (s *Session) publish(t EventType) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(Event{Type: t, Source: s.Key().String()})
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
