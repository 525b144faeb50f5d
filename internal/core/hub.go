package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/tutorline/internal/provider"
)

var (
	// ErrSessionNotFound is returned when no surface is mounted for a key.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned by operations on an unmounted session.
	ErrSessionClosed = errors.New("session closed")
)

// HubOptions configure a Hub.
type HubOptions struct {
	Registry *provider.Registry
	Backend  Backend
	Bus      *EventBus

	// SessionKV holds retry markers; LocalKV holds notification state.
	SessionKV KV
	LocalKV   KV

	TooltipDuration time.Duration
	PollInterval    time.Duration
	PollMaxAttempts int
}

// Hub owns every mounted chat surface, one Session per thread key.
type Hub struct {
	mu sync.RWMutex

	sessions map[ThreadKey]*Session
	order    []ThreadKey

	threads  *ConversationStore
	registry *provider.Registry
	backend  Backend
	bus      *EventBus
	readSync *ReadSync
	poller   *Poller

	sessionKV KV
	localKV   KV
	tooltip   time.Duration

	// one streamer and resume coordinator per generator
	streamers map[string]*Streamer
	resumers  map[string]*ResumeCoordinator

	updates chan ThreadKey
}

// NewHub creates a hub.
func NewHub(opts HubOptions) *Hub {
	return &Hub{
		sessions:  make(map[ThreadKey]*Session),
		threads:   NewConversationStore(),
		registry:  opts.Registry,
		backend:   opts.Backend,
		bus:       opts.Bus,
		readSync:  NewReadSync(opts.Backend, opts.Bus),
		poller:    NewPoller(opts.Backend, opts.PollInterval, opts.PollMaxAttempts, opts.Bus),
		sessionKV: opts.SessionKV,
		localKV:   opts.LocalKV,
		tooltip:   opts.TooltipDuration,
		streamers: make(map[string]*Streamer),
		resumers:  make(map[string]*ResumeCoordinator),
		updates:   make(chan ThreadKey, 256),
	}
}

// Open mounts a surface for key served by the named generator and loads
// its history. Opening a mounted key returns the existing session. A
// failed history load leaves the session mounted and returns the error.
func (h *Hub) Open(ctx context.Context, key ThreadKey, title, backend string) (*Session, error) {
	h.mu.Lock()
	if s, ok := h.sessions[key]; ok {
		h.mu.Unlock()
		return s, nil
	}

	streamer, resume, err := h.pipelineLocked(backend)
	if err != nil {
		h.mu.Unlock()
		return nil, fmt.Errorf("open %s: %w", key, err)
	}

	thread := h.threads.Open(key)
	s := NewSession(SessionDeps{
		Title:    title,
		Backend:  backend,
		Thread:   thread,
		Streamer: streamer,
		Resume:   resume,
		ReadSync: h.readSync,
		Notifier: NewNotifier(key, h.localKV, h.tooltip, func(bool) { h.notifyUpdate(key) }),
		Loader:   h.backend,
		Bus:      h.bus,
		OnUpdate: h.notifyUpdate,
	})
	h.sessions[key] = s
	h.order = append(h.order, key)
	h.mu.Unlock()

	log.Info().Str("thread", key.String()).Str("backend", backend).Msg("surface mounted")

	if err := s.Load(ctx); err != nil {
		return s, err
	}
	return s, nil
}

func (h *Hub) pipelineLocked(backend string) (*Streamer, *ResumeCoordinator, error) {
	if s, ok := h.streamers[backend]; ok {
		return s, h.resumers[backend], nil
	}
	g, err := h.registry.Get(backend)
	if err != nil {
		return nil, nil, err
	}
	s := NewStreamer(g, h.bus)
	r := NewResumeCoordinator(h.sessionKV, s)
	h.streamers[backend] = s
	h.resumers[backend] = r
	return s, r, nil
}

// Get returns the session for key.
func (h *Hub) Get(key ThreadKey) (*Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return s, nil
}

// List returns mounted sessions in mount order.
func (h *Hub) List() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.order))
	for _, k := range h.order {
		out = append(out, h.sessions[k])
	}
	return out
}

// Close unmounts the surface for key and discards its thread.
func (h *Hub) Close(key ThreadKey) error {
	h.mu.Lock()
	s, ok := h.sessions[key]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	delete(h.sessions, key)
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.mu.Unlock()

	// Outside the hub lock: Close waits for streams that call back into the hub.
	s.Close()
	h.threads.Discard(key)

	if h.bus != nil {
		h.bus.Publish(Event{Type: EventReadStateChanged, Source: key.String()})
	}
	log.Info().Str("thread", key.String()).Msg("surface unmounted")
	return nil
}

// CloseAll unmounts every surface.
func (h *Hub) CloseAll() {
	for _, s := range h.List() {
		if err := h.Close(s.Key()); err != nil {
			log.Debug().Err(err).Msg("close session")
		}
	}
}

// Focus foregrounds key and backgrounds every other surface.
func (h *Hub) Focus(ctx context.Context, key ThreadKey) error {
	if _, err := h.Get(key); err != nil {
		return err
	}
	for _, s := range h.List() {
		if s.Key() != key {
			s.SetForeground(ctx, false)
		}
	}
	for _, s := range h.List() {
		if s.Key() == key {
			s.SetForeground(ctx, true)
		}
	}
	return nil
}

// Blur backgrounds every surface.
func (h *Hub) Blur(ctx context.Context) {
	for _, s := range h.List() {
		s.SetForeground(ctx, false)
	}
}

// Refresh reloads every mounted surface's history. Errors are logged.
func (h *Hub) Refresh(ctx context.Context) {
	for _, s := range h.List() {
		if err := s.Load(ctx); err != nil {
			log.Warn().Err(err).Str("thread", s.Key().String()).Msg("refresh failed")
		}
	}
}

// ContentLoader returns a loader for async content backed by the hub's
// backend and poller.
func (h *Hub) ContentLoader(onChange func(ContentView)) *ContentLoader {
	return NewContentLoader(h.backend, h.poller, onChange)
}

// Updates delivers the key of any surface whose visible state changed.
// Updates are coalesced: a slow reader sees fewer, not stale, keys.
func (h *Hub) Updates() <-chan ThreadKey {
	return h.updates
}

func (h *Hub) notifyUpdate(key ThreadKey) {
	select {
	case h.updates <- key:
	default:
	}
}
