// Package api is the HTTP client for the platform's conversation and
// content endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xonecas/tutorline/internal/config"
	"github.com/xonecas/tutorline/internal/core"
	"github.com/xonecas/tutorline/internal/provider"
)

// ErrStatus is wrapped by errors for non-success HTTP responses.
var ErrStatus = errors.New("unexpected status")

const maxErrorBody = 2048

// Client talks to the platform API.
type Client struct {
	baseURL    string
	api        config.APIConfig
	httpClient *http.Client
}

// NewClient creates a client from the API configuration.
func NewClient(cfg config.APIConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		api:        cfg,
		httpClient: &http.Client{},
	}
}

type messageJSON struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}

type historyJSON struct {
	Messages     []messageJSON `json:"messages"`
	LastReadAt   string        `json:"last_read_at,omitempty"`
	IsNewSession bool          `json:"is_new_session"`
}

type jobJSON struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Content string `json:"content,omitempty"`
}

// History fetches a thread's messages and read watermark.
func (c *Client) History(ctx context.Context, key core.ThreadKey) (*core.History, error) {
	var raw historyJSON
	if err := c.do(ctx, http.MethodGet, c.url(c.api.HistoryPath, key.AgentID, key.ContextID, ""), &raw); err != nil {
		return nil, fmt.Errorf("history %s: %w", key, err)
	}

	h := &core.History{
		Messages:     make([]core.Message, 0, len(raw.Messages)),
		IsNewSession: raw.IsNewSession,
	}
	for _, m := range raw.Messages {
		createdAt, err := core.ParseTimestamp(m.CreatedAt)
		if err != nil {
			// A message without a usable timestamp has no identity; keep it.
			log.Warn().Err(err).Str("thread", key.String()).Msg("bad message timestamp")
		}
		h.Messages = append(h.Messages, core.Message{
			Role:      core.Role(m.Role),
			Content:   m.Content,
			CreatedAt: createdAt,
		})
	}

	lastRead, err := core.ParseTimestamp(raw.LastReadAt)
	if err != nil {
		return nil, fmt.Errorf("history %s: last_read_at: %w", key, err)
	}
	h.LastReadAt = lastRead
	return h, nil
}

// MarkRead marks a thread read. Only the status code matters.
func (c *Client) MarkRead(ctx context.Context, key core.ThreadKey) error {
	if err := c.do(ctx, http.MethodPost, c.url(c.api.MarkReadPath, key.AgentID, key.ContextID, ""), nil); err != nil {
		return fmt.Errorf("mark read %s: %w", key, err)
	}
	return nil
}

// JobStatus queries an async generation job.
func (c *Client) JobStatus(ctx context.Context, id string) (*core.GenerationJob, error) {
	job, err := c.job(ctx, c.url(c.api.JobPath, "", "", id), id)
	if err != nil {
		return nil, fmt.Errorf("job status %s: %w", id, err)
	}
	return job, nil
}

// Content performs the first read of async content. Ready content comes
// back with status completed.
func (c *Client) Content(ctx context.Context, id string) (*core.GenerationJob, error) {
	job, err := c.job(ctx, c.url(c.api.ContentPath, "", "", id), id)
	if err != nil {
		return nil, fmt.Errorf("content %s: %w", id, err)
	}
	return job, nil
}

func (c *Client) job(ctx context.Context, u, id string) (*core.GenerationJob, error) {
	var raw jobJSON
	if err := c.do(ctx, http.MethodGet, u, &raw); err != nil {
		return nil, err
	}
	status := core.JobStatus(strings.ToLower(raw.Status))
	if !status.Valid() {
		return nil, fmt.Errorf("unknown job status %q", raw.Status)
	}
	if raw.ID == "" {
		raw.ID = id
	}
	return &core.GenerationJob{ID: raw.ID, Status: status, Content: raw.Content}, nil
}

// GenerateURL returns the generate endpoint for a thread.
func (c *Client) GenerateURL(tc provider.ThreadContext) string {
	return c.url(c.api.GeneratePath, tc.AgentID, tc.ContextID, "")
}

// Headers returns the headers sent with every request.
func (c *Client) Headers() map[string]string {
	return c.api.Headers
}

func (c *Client) url(template, agent, contextID, id string) string {
	return c.baseURL + ExpandPath(template, agent, contextID, id)
}

// ExpandPath fills {agent}, {context} and {id} in a path template.
// Values in the query part are query-escaped, the rest path-escaped.
func ExpandPath(template, agent, contextID, id string) string {
	path, query, hasQuery := strings.Cut(template, "?")
	path = expand(path, url.PathEscape, agent, contextID, id)
	if !hasQuery {
		return path
	}
	return path + "?" + expand(query, url.QueryEscape, agent, contextID, id)
}

func expand(s string, escape func(string) string, agent, contextID, id string) string {
	return strings.NewReplacer(
		"{agent}", escape(agent),
		"{context}", escape(contextID),
		"{id}", escape(id),
	).Replace(s)
}

func (c *Client) do(ctx context.Context, method, u string, out interface{}) error {
	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte("{}"))
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.New().String())
	for k, v := range c.api.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
