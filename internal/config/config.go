// Package config handles configuration loading from TOML files and environment variables.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Backend names understood by the provider registry.
const (
	BackendPlatform = "platform"
	BackendOpenAI   = "openai"
)

// Config is the root configuration structure.
type Config struct {
	API      APIConfig       `toml:"api"`
	OpenAI   OpenAIConfig    `toml:"openai"`
	Poller   PollerConfig    `toml:"poller"`
	Notify   NotifyConfig    `toml:"notify"`
	Surfaces []SurfaceConfig `toml:"surfaces"`
}

// APIConfig holds the platform endpoints consumed by the engine.
// Paths accept {agent}, {context} and {id} placeholders.
type APIConfig struct {
	BaseURL      string            `toml:"base_url"`
	GeneratePath string            `toml:"generate_path"`
	HistoryPath  string            `toml:"history_path"`
	MarkReadPath string            `toml:"mark_read_path"`
	ContentPath  string            `toml:"content_path"`
	JobPath      string            `toml:"job_path"`
	Headers      map[string]string `toml:"headers"`
	RateLimit    float64           `toml:"rate_limit"`
	RateBurst    int               `toml:"rate_burst"`
}

// OpenAIConfig configures the direct OpenAI-compatible backend.
type OpenAIConfig struct {
	Endpoint  string  `toml:"endpoint"`
	Model     string  `toml:"model"`
	APIKeyEnv string  `toml:"api_key_env"`
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

// PollerConfig controls async content polling.
type PollerConfig struct {
	Interval    Duration `toml:"interval"`
	MaxAttempts int      `toml:"max_attempts"`
}

// NotifyConfig controls background notifications.
type NotifyConfig struct {
	TooltipDuration Duration `toml:"tooltip_duration"`
}

// SurfaceConfig declares one chat surface (agent plus optional context).
type SurfaceConfig struct {
	Agent   string `toml:"agent"`
	Context string `toml:"context"`
	Title   string `toml:"title"`
	Backend string `toml:"backend"`
}

// Duration decodes TOML strings like "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:      "http://localhost:8000",
			GeneratePath: "/api/agents/{agent}/chat",
			HistoryPath:  "/api/agents/{agent}/history?context={context}",
			MarkReadPath: "/api/agents/{agent}/read?context={context}",
			ContentPath:  "/api/content/{id}",
			JobPath:      "/api/jobs/{id}",
			Headers:      map[string]string{},
			RateLimit:    2.0,
			RateBurst:    3,
		},
		OpenAI: OpenAIConfig{
			Endpoint:  "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
			RateLimit: 1.0,
			RateBurst: 2,
		},
		Poller: PollerConfig{
			Interval:    Duration{5 * time.Second},
			MaxAttempts: 30,
		},
		Notify: NotifyConfig{
			TooltipDuration: Duration{5 * time.Second},
		},
		Surfaces: []SurfaceConfig{
			{Agent: "assistant", Title: "Assistant", Backend: BackendPlatform},
		},
	}
}

// Load reads configuration from a TOML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnvOverrides(cfg)
	normalize(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TUTORLINE_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}

	if v := os.Getenv("TUTORLINE_API_TOKEN"); v != "" {
		if cfg.API.Headers == nil {
			cfg.API.Headers = map[string]string{}
		}
		cfg.API.Headers["Authorization"] = "Bearer " + v
	}

	if v := os.Getenv("TUTORLINE_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.API.RateLimit = f
		}
	}

	if v := os.Getenv("TUTORLINE_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.RateBurst = n
		}
	}

	if v := os.Getenv("TUTORLINE_OPENAI_ENDPOINT"); v != "" {
		cfg.OpenAI.Endpoint = v
	}

	if v := os.Getenv("TUTORLINE_OPENAI_MODEL"); v != "" {
		cfg.OpenAI.Model = v
	}

	if v := os.Getenv("TUTORLINE_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Poller.Interval = Duration{d}
		}
	}

	if v := os.Getenv("TUTORLINE_POLL_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poller.MaxAttempts = n
		}
	}
}

// normalize fills zero values left behind by partial files.
func normalize(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Poller.Interval.Duration <= 0 {
		cfg.Poller.Interval = defaults.Poller.Interval
	}
	if cfg.Poller.MaxAttempts <= 0 {
		cfg.Poller.MaxAttempts = defaults.Poller.MaxAttempts
	}
	if cfg.Notify.TooltipDuration.Duration <= 0 {
		cfg.Notify.TooltipDuration = defaults.Notify.TooltipDuration
	}
	for i := range cfg.Surfaces {
		if cfg.Surfaces[i].Backend == "" {
			cfg.Surfaces[i].Backend = BackendPlatform
		}
		if cfg.Surfaces[i].Title == "" {
			cfg.Surfaces[i].Title = cfg.Surfaces[i].Agent
		}
	}
}

// OpenAIKey returns the API key for the direct backend, if set.
func (c *Config) OpenAIKey() string {
	if c.OpenAI.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.OpenAI.APIKeyEnv)
}

// DataDir returns the path to the Tutorline data directory (~/.tutorline).
func DataDir() (string, error) {
	if v := os.Getenv("TUTORLINE_DATA_DIR"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tutorline"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
