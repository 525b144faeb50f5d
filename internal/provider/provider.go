// Package provider defines the generation backend interface and implementations.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrGeneratorNotFound is returned when a requested backend doesn't exist.
var ErrGeneratorNotFound = errors.New("generator not found")

// Message represents a chat message sent as generation context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ThreadContext identifies the conversation a generation belongs to.
type ThreadContext struct {
	AgentID   string `json:"agent_id"`
	ContextID string `json:"context_id,omitempty"`
}

// GenerateRequest is one generation call.
type GenerateRequest struct {
	History []Message     `json:"history"`
	Thread  ThreadContext `json:"thread"`
	// PersistUserTurn asks the server to store the newest user turn. It is
	// false when resuming a turn the server already has.
	PersistUserTurn bool `json:"persist_user_turn"`
}

// Generator defines the interface for generation backends.
type Generator interface {
	// Name returns the backend identifier.
	Name() string

	// Generate starts a generation and returns a channel that streams text chunks.
	// The channel is closed after a chunk with Done or Err set.
	Generate(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error)
}

// StreamChunk represents a chunk of streamed response.
type StreamChunk struct {
	Content string
	Done    bool
	Err     error
}

// StatusError reports a non-success HTTP status from a backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("generate status %d", e.Code)
	}
	return fmt.Sprintf("generate status %d: %s", e.Code, e.Body)
}

// Registry holds available generators.
type Registry struct {
	generators map[string]Generator
}

// NewRegistry creates a new generator registry.
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[string]Generator),
	}
}

// Register adds a generator to the registry.
func (r *Registry) Register(g Generator) {
	r.generators[g.Name()] = g
}

// Get retrieves a generator by name.
func (r *Registry) Get(name string) (Generator, error) {
	g, ok := r.generators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGeneratorNotFound, name)
	}
	return g, nil
}

// List returns all registered generator names, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
