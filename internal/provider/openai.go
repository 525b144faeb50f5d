package provider

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIGenerator talks to an OpenAI-compatible chat completions endpoint
// directly. There is no server-side history, so PersistUserTurn is ignored.
type OpenAIGenerator struct {
	name    string
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAI creates a direct OpenAI-compatible generator. limiter may be nil.
func NewOpenAI(name, endpoint, model, apiKey string, limiter *rate.Limiter) *OpenAIGenerator {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = endpoint

	return &OpenAIGenerator{
		name:    name,
		client:  openai.NewClientWithConfig(config),
		model:   model,
		limiter: limiter,
	}
}

// Name returns the backend identifier.
func (g *OpenAIGenerator) Name() string {
	return g.name
}

// Generate streams a chat completion for the request history.
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: toOpenAIMessages(req.History),
		Stream:   true,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return nil, err
	}

	if !req.PersistUserTurn {
		log.Debug().Str("agent", req.Thread.AgentID).Msg("OpenAI: resume request, nothing to persist")
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer stream.Close()

		send := func(c StreamChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				send(StreamChunk{Done: true})
				return
			}
			if err != nil {
				send(StreamChunk{Err: err})
				return
			}

			if len(resp.Choices) > 0 && resp.Choices[0].Delta.Content != "" {
				if !send(StreamChunk{Content: resp.Choices[0].Delta.Content}) {
					return
				}
			}
		}
	}()

	return ch, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		result = append(result, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return result
}
