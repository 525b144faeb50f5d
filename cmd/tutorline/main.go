package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/xonecas/tutorline/internal/api"
	"github.com/xonecas/tutorline/internal/config"
	"github.com/xonecas/tutorline/internal/constants"
	"github.com/xonecas/tutorline/internal/core"
	"github.com/xonecas/tutorline/internal/provider"
	"github.com/xonecas/tutorline/internal/store"
	"github.com/xonecas/tutorline/internal/tui"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	var (
		showVersion   = flag.Bool("version", false, "Show version and exit")
		configPath    = flag.String("config", "config.toml", "Path to config file")
		debug         = flag.Bool("debug", false, "Enable debug logging")
		markdownStyle = flag.String("markdown", "dark", "Glamour style for replies (dark, light, notty, or empty for plain text)")
		resetMarkers  = flag.Bool("reset-markers", false, "Forget recovery attempts for every thread, then exit")
		checkAPI      = flag.Bool("check-api", false, "Fetch history for every configured surface, then exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Tutorline %s\n", Version)
		os.Exit(0)
	}

	if *checkAPI {
		runAPICheck(*configPath)
		return
	}

	if err := initLogging(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	log.Info().Str("version", Version).Msg("Starting Tutorline")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log.Debug().Interface("config", cfg).Msg("Configuration loaded")

	s, err := store.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer s.Close()

	if *resetMarkers {
		n, err := s.ClearScope(store.ScopeSession)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to clear retry markers")
		}
		log.Info().Int64("markers", n).Msg("Retry markers cleared")
		fmt.Printf("Cleared %d retry markers\n", n)
		return
	}

	if n, err := s.BeginSession(time.Now(), constants.SessionIdleTimeout); err != nil {
		log.Warn().Err(err).Msg("Failed to start session")
	} else if n > 0 {
		log.Info().Int64("markers", n).Msg("New session, retry markers cleared")
	}

	bus := core.NewEventBus(1000)
	defer bus.Close()

	client := api.NewClient(cfg.API)
	registry := initProviders(cfg, client)
	log.Debug().Strs("providers", registry.List()).Msg("Providers initialized")

	hub := core.NewHub(core.HubOptions{
		Registry:        registry,
		Backend:         client,
		Bus:             bus,
		SessionKV:       s.KV(store.ScopeSession),
		LocalKV:         s.KV(store.ScopeLocal),
		TooltipDuration: cfg.Notify.TooltipDuration.Duration,
		PollInterval:    cfg.Poller.Interval.Duration,
		PollMaxAttempts: cfg.Poller.MaxAttempts,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, sc := range cfg.Surfaces {
		key := core.ThreadKey{AgentID: sc.Agent, ContextID: sc.Context}
		if _, err := hub.Open(ctx, key, sc.Title, sc.Backend); err != nil {
			log.Warn().Err(err).Str("thread", key.String()).Msg("Failed to load surface")
		}
	}

	inbox := core.NewInbox(hub, bus)
	go inbox.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	eventCh := bus.Subscribe()

	model := tui.New(ctx, hub, inbox, eventCh, tui.NewMarkdown(*markdownStyle))
	program := tea.NewProgram(model, tea.WithAltScreen())

	go func() {
		<-sigCh
		log.Info().Msg("Received shutdown signal")
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		log.Error().Err(err).Msg("TUI error")
	}

	cancel()
	hub.CloseAll()
	if err := s.TouchSession(time.Now()); err != nil {
		log.Warn().Err(err).Msg("Failed to record session end")
	}

	log.Info().Msg("Tutorline shutdown complete")
}

func initLogging(debug bool) error {
	dataDir, err := config.EnsureDataDir()
	if err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}

	// Truncate on startup
	logPath := filepath.Join(dataDir, "tutorline.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Log to file only (TUI owns stdout/stderr)
	log.Logger = zerolog.New(logFile).With().Timestamp().Logger()

	return nil
}

func initProviders(cfg *config.Config, client *api.Client) *provider.Registry {
	registry := provider.NewRegistry()

	platformLimiter := rate.NewLimiter(rate.Limit(cfg.API.RateLimit), cfg.API.RateBurst)
	registry.Register(provider.NewHTTPGenerator(config.BackendPlatform, client.GenerateURL, client.Headers(), platformLimiter))

	if apiKey := cfg.OpenAIKey(); apiKey != "" {
		limiter := rate.NewLimiter(rate.Limit(cfg.OpenAI.RateLimit), cfg.OpenAI.RateBurst)
		registry.Register(provider.NewOpenAI(config.BackendOpenAI, cfg.OpenAI.Endpoint, cfg.OpenAI.Model, apiKey, limiter))
	} else {
		log.Debug().Str("env", cfg.OpenAI.APIKeyEnv).Msg("No OpenAI key, openai backend disabled")
	}

	return registry
}

// runAPICheck fetches each surface's history and reports what it found.
func runAPICheck(configPath string) {
	fmt.Println("=== API Check ===")
	fmt.Println()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Base URL: %s\n", cfg.API.BaseURL)
	client := api.NewClient(cfg.API)

	failed := 0
	for _, sc := range cfg.Surfaces {
		key := core.ThreadKey{AgentID: sc.Agent, ContextID: sc.Context}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		h, err := client.History(ctx, key)
		cancel()

		if err != nil {
			fmt.Printf("  [%s] ERROR: %v\n", key, err)
			failed++
			continue
		}

		unread := core.ComputeUnread(h.Messages, h.LastReadAt)
		fmt.Printf("  [%s] OK: %d messages, unread=%t, new_session=%t\n", key, len(h.Messages), unread, h.IsNewSession)
		if core.NeedsResume(h.Messages) {
			fmt.Printf("  [%s] trailing user turn would be resumed\n", key)
		}
	}

	fmt.Println("\n=== Check Complete ===")
	if failed > 0 {
		os.Exit(1)
	}
}
