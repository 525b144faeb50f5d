package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const readBufferSize = 4096

// HTTPGenerator streams replies from the platform's generate endpoint.
// The response body is raw text with no framing; the concatenation of
// all chunks is the reply.
type HTTPGenerator struct {
	name       string
	url        func(ThreadContext) string
	headers    map[string]string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPGenerator creates a generator posting to the URL returned by url.
// limiter may be nil.
func NewHTTPGenerator(name string, url func(ThreadContext) string, headers map[string]string, limiter *rate.Limiter) *HTTPGenerator {
	return &HTTPGenerator{
		name:    name,
		url:     url,
		headers: headers,
		// No timeout: a reply can stream for minutes; failures surface from the transport.
		httpClient: &http.Client{},
		limiter:    limiter,
	}
}

// Name returns the backend identifier.
func (g *HTTPGenerator) Name() string {
	return g.name
}

// Generate posts the request and streams the response body.
func (g *HTTPGenerator) Generate(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url(req.Thread), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain")
	httpReq.Header.Set("X-Request-Id", uuid.New().String())
	for k, v := range g.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	log.Debug().
		Str("agent", req.Thread.AgentID).
		Str("context", req.Thread.ContextID).
		Int("history", len(req.History)).
		Bool("persist_user_turn", req.PersistUserTurn).
		Msg("Generate stream opened")

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		readStream(ctx, resp.Body, ch)
	}()

	return ch, nil
}

// readStream forwards body reads as chunks, holding back an incomplete
// trailing UTF-8 sequence until the next read completes it.
func readStream(ctx context.Context, body io.Reader, ch chan<- StreamChunk) {
	buf := make([]byte, readBufferSize)
	var pending []byte

	send := func(c StreamChunk) bool {
		select {
		case ch <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			complete, rest := splitUTF8(pending)
			if len(complete) > 0 {
				if !send(StreamChunk{Content: string(complete)}) {
					return
				}
			}
			pending = append(pending[:0:0], rest...)
		}
		if errors.Is(err, io.EOF) {
			if len(pending) > 0 {
				if !send(StreamChunk{Content: string(pending)}) {
					return
				}
			}
			send(StreamChunk{Done: true})
			return
		}
		if err != nil {
			send(StreamChunk{Err: fmt.Errorf("read stream: %w", err)})
			return
		}
	}
}

// splitUTF8 returns the longest prefix of b that does not end inside a
// multi-byte sequence, and the remainder.
func splitUTF8(b []byte) (complete, rest []byte) {
	// A rune is at most 4 bytes, so only the last 3 can be incomplete.
	for i := len(b) - 1; i >= 0 && i >= len(b)-3; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return b, nil
		}
		return b[:i], b[i:]
	}
	return b, nil
}
