package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/tutorline/internal/constants"
	"github.com/xonecas/tutorline/internal/provider"
)

// Delta is one update from a generation. The final Delta has Done set and
// carries the committed message, which is nil when nothing was committed.
type Delta struct {
	Text    string
	Done    bool
	Message *Message
	Err     error
}

// Streamer runs generations against a backend and feeds them into threads.
type Streamer struct {
	generator provider.Generator
	bus       *EventBus
	now       func() time.Time
}

// NewStreamer creates a streamer for one backend.
func NewStreamer(g provider.Generator, bus *EventBus) *Streamer {
	return &Streamer{
		generator: g,
		bus:       bus,
		now:       time.Now,
	}
}

// Send starts a generation for thread using history as context. history is
// the full ordered conversation including the newest user turn. When
// persistUserTurn is false the server already has that turn (resume).
//
// Send is a no-op returning (nil, false) while thread is already
// generating. Otherwise the returned channel yields one Delta per chunk
// and a final Done Delta, then closes. The caller must drain it.
func (s *Streamer) Send(ctx context.Context, thread *Thread, history []Message, persistUserTurn bool) (<-chan Delta, bool) {
	if !thread.beginGeneration(history) {
		log.Debug().Str("thread", thread.Key().String()).Msg("Send ignored: generation in flight")
		return nil, false
	}

	s.publishStatus(thread.Key())

	req := provider.GenerateRequest{
		History: toProviderMessages(thread.Messages()),
		Thread: provider.ThreadContext{
			AgentID:   thread.Key().AgentID,
			ContextID: thread.Key().ContextID,
		},
		PersistUserTurn: persistUserTurn,
	}

	out := make(chan Delta, constants.StreamDeltaBuffer)
	go s.run(ctx, thread, req, out)
	return out, true
}

func (s *Streamer) run(ctx context.Context, thread *Thread, req provider.GenerateRequest, out chan<- Delta) {
	defer close(out)

	text, err := s.stream(ctx, thread, req, out)

	var msg *Message
	switch {
	case err != nil:
		log.Warn().
			Err(err).
			Str("thread", thread.Key().String()).
			Bool("persist_user_turn", req.PersistUserTurn).
			Msg("generation failed")
		msg = &Message{
			Role:      RoleAssistant,
			Content:   streamErrorText(err),
			CreatedAt: s.now().UTC(),
			Local:     true,
		}
	case text != "":
		msg = &Message{
			Role:      RoleAssistant,
			Content:   text,
			CreatedAt: s.now().UTC(),
			Local:     true,
		}
	default:
		log.Debug().Str("thread", thread.Key().String()).Msg("generation produced no text")
	}

	if !thread.finishGeneration(msg) {
		msg = nil
	}
	s.publishStatus(thread.Key())

	final := Delta{Done: true, Message: msg, Err: err}
	select {
	case out <- final:
	default:
		select {
		case out <- final:
		case <-ctx.Done():
		}
	}
}

// stream reads chunks into the thread buffer and returns the accumulated text.
func (s *Streamer) stream(ctx context.Context, thread *Thread, req provider.GenerateRequest, out chan<- Delta) (string, error) {
	chunks, err := s.generator.Generate(ctx, req)
	if err != nil {
		return "", err
	}

	var acc strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return acc.String(), nil
			}
			if chunk.Err != nil {
				return "", chunk.Err
			}
			if chunk.Content != "" {
				acc.WriteString(chunk.Content)
				thread.appendChunk(chunk.Content)
				select {
				case out <- Delta{Text: chunk.Content}:
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}
			if chunk.Done {
				return acc.String(), nil
			}
		}
	}
}

func (s *Streamer) publishStatus(key ThreadKey) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(Event{Type: EventGenerationStatusChanged, Source: key.String()})
}

func streamErrorText(err error) string {
	var statusErr *provider.StatusError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("%s (server returned %d)", constants.StreamErrorMessage, statusErr.Code)
	case errors.Is(err, context.Canceled):
		return constants.StreamErrorMessage + " (cancelled)"
	case errors.Is(err, context.DeadlineExceeded):
		return constants.StreamErrorMessage + " (timed out)"
	default:
		return constants.StreamErrorMessage
	}
}

func toProviderMessages(msgs []Message) []provider.Message {
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, provider.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// drain consumes a delta channel and returns the final delta.
func drain(ch <-chan Delta) Delta {
	var last Delta
	for d := range ch {
		if d.Done {
			last = d
		}
	}
	return last
}
