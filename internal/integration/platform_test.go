package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/xonecas/tutorline/internal/api"
	"github.com/xonecas/tutorline/internal/config"
	"github.com/xonecas/tutorline/internal/core"
	"github.com/xonecas/tutorline/internal/provider"
)

// platform is an in-process stand-in for the conversation API. Generate
// streams its reply in two writes.
type platform struct {
	mu         sync.Mutex
	messages   map[string][]wireMessage
	lastReadAt map[string]time.Time
	newSession map[string]bool
	jobs       map[string][]wireJob
	reply      []string

	generateCalls int
	markReadCalls int
	persisted     []string
}

type wireMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}

type wireJob struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Content string `json:"content,omitempty"`
}

func newPlatform() *platform {
	return &platform{
		messages:   make(map[string][]wireMessage),
		lastReadAt: make(map[string]time.Time),
		newSession: make(map[string]bool),
		jobs:       make(map[string][]wireJob),
		reply:      []string{"Hel", "lo!"},
	}
}

func threadKey(r *http.Request) string {
	key := r.PathValue("agent")
	if c := r.URL.Query().Get("context"); c != "" {
		key += ":" + c
	}
	return key
}

func (p *platform) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/agents/{agent}/history", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		key := threadKey(r)
		resp := map[string]any{
			"messages":       append([]wireMessage{}, p.messages[key]...),
			"is_new_session": p.newSession[key],
		}
		if t, ok := p.lastReadAt[key]; ok {
			resp["last_read_at"] = t.Format(time.RFC3339Nano)
		}
		p.mu.Unlock()
		_ = json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("POST /api/agents/{agent}/read", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.lastReadAt[threadKey(r)] = time.Now().UTC()
		p.markReadCalls++
		p.mu.Unlock()
		_, _ = w.Write([]byte("{}"))
	})

	mux.HandleFunc("POST /api/agents/{agent}/chat", func(w http.ResponseWriter, r *http.Request) {
		var req provider.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		key := req.Thread.AgentID
		if req.Thread.ContextID != "" {
			key += ":" + req.Thread.ContextID
		}

		p.mu.Lock()
		p.generateCalls++
		if req.PersistUserTurn && len(req.History) > 0 {
			last := req.History[len(req.History)-1]
			p.persisted = append(p.persisted, last.Content)
			p.messages[key] = append(p.messages[key], wireMessage{Role: last.Role, Content: last.Content, CreatedAt: time.Now().UTC().Format(time.RFC3339Nano)})
		}
		reply := append([]string{}, p.reply...)
		p.mu.Unlock()

		w.Header().Set("Content-Type", "text/plain")
		flusher, _ := w.(http.Flusher)
		full := ""
		for _, chunk := range reply {
			_, _ = w.Write([]byte(chunk))
			if flusher != nil {
				flusher.Flush()
			}
			full += chunk
		}

		p.mu.Lock()
		p.messages[key] = append(p.messages[key], wireMessage{Role: "assistant", Content: full, CreatedAt: time.Now().UTC().Format(time.RFC3339Nano)})
		p.mu.Unlock()
	})

	job := func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		p.mu.Lock()
		queue := p.jobs[id]
		var next wireJob
		if len(queue) > 0 {
			next = queue[0]
			if len(queue) > 1 {
				p.jobs[id] = queue[1:]
			}
		}
		p.mu.Unlock()
		if next.Status == "" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(next)
	}
	mux.HandleFunc("GET /api/content/{id}", job)
	mux.HandleFunc("GET /api/jobs/{id}", job)

	return mux
}

func (p *platform) setMessages(key string, msgs ...wireMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[key] = msgs
}

func (p *platform) persistedTurns() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.persisted...)
}

func (p *platform) stats() (generate, markRead int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generateCalls, p.markReadCalls
}

// newClient returns an API client and a registry with the platform
// generator pointed at srv.
func newClient(srv *httptest.Server) (*api.Client, *provider.Registry) {
	cfg := config.DefaultConfig().API
	cfg.BaseURL = srv.URL
	client := api.NewClient(cfg)

	reg := provider.NewRegistry()
	reg.Register(provider.NewHTTPGenerator(config.BackendPlatform, client.GenerateURL, client.Headers(), nil))
	return client, reg
}

func newHub(client *api.Client, reg *provider.Registry, bus *core.EventBus, session, local core.KV) *core.Hub {
	return core.NewHub(core.HubOptions{
		Registry:        reg,
		Backend:         client,
		Bus:             bus,
		SessionKV:       session,
		LocalKV:         local,
		TooltipDuration: time.Hour,
		PollInterval:    5 * time.Millisecond,
		PollMaxAttempts: 5,
	})
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
