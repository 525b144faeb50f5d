package provider

import (
	"context"
	"sync"
)

// MockGenerator is a test generator that streams predefined chunks.
type MockGenerator struct {
	name      string
	chunks    []string
	startErr  error
	streamErr error
	gate      chan struct{}

	mu       sync.Mutex
	requests []GenerateRequest
}

// NewMock creates a new mock generator streaming the given chunks.
func NewMock(name string, chunks ...string) *MockGenerator {
	return &MockGenerator{
		name:   name,
		chunks: chunks,
	}
}

// WithStartError makes Generate fail before streaming.
func (g *MockGenerator) WithStartError(err error) *MockGenerator {
	g.startErr = err
	return g
}

// WithStreamError makes the stream fail after the chunks are sent.
func (g *MockGenerator) WithStreamError(err error) *MockGenerator {
	g.streamErr = err
	return g
}

// WithGate holds the stream open until the gate is closed.
func (g *MockGenerator) WithGate(gate chan struct{}) *MockGenerator {
	g.gate = gate
	return g
}

// Name returns the backend identifier.
func (g *MockGenerator) Name() string {
	return g.name
}

// Requests returns a copy of every request received.
func (g *MockGenerator) Requests() []GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GenerateRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// Calls returns the number of Generate calls.
func (g *MockGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// Generate records the request and streams the predefined chunks.
func (g *MockGenerator) Generate(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.startErr != nil {
		return nil, g.startErr
	}

	ch := make(chan StreamChunk, len(g.chunks)+1)
	go func() {
		defer close(ch)
		for _, c := range g.chunks {
			ch <- StreamChunk{Content: c}
		}
		if g.gate != nil {
			select {
			case <-g.gate:
			case <-ctx.Done():
				ch <- StreamChunk{Err: ctx.Err()}
				return
			}
		}
		if g.streamErr != nil {
			ch <- StreamChunk{Err: g.streamErr}
			return
		}
		ch <- StreamChunk{Done: true}
	}()

	return ch, nil
}
