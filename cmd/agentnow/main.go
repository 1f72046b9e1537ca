// Command agentnow runs the live voice interaction orchestrator service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/must108/agentnow/internal/config"
	"github.com/must108/agentnow/internal/health"
	"github.com/must108/agentnow/internal/history"
	"github.com/must108/agentnow/internal/observe"
	"github.com/must108/agentnow/internal/orchestrator"
	"github.com/must108/agentnow/internal/playback"
	"github.com/must108/agentnow/internal/recommend"
	"github.com/must108/agentnow/internal/resilience"
	"github.com/must108/agentnow/internal/server"
	"github.com/must108/agentnow/pkg/speech"
	"github.com/must108/agentnow/pkg/speech/wsr"
	"github.com/must108/agentnow/pkg/synth"
	synthremote "github.com/must108/agentnow/pkg/synth/remote"
)

const version = "0.3.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "agentnow: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "agentnow: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("agentnow starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "agentnow",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Recommendation backend ────────────────────────────────────────────────
	breaker := resilience.New(resilience.Config{
		Name:      "backend",
		Threshold: cfg.Backend.Breaker.Threshold,
		CoolDown:  cfg.Backend.Breaker.CoolDown,
	})
	clientOpts := []recommend.Option{
		recommend.WithMetrics(metrics),
		recommend.WithBreaker(breaker),
	}
	if cfg.Backend.RequestTimeout > 0 {
		clientOpts = append(clientOpts, recommend.WithTimeout(cfg.Backend.RequestTimeout))
	}
	if cfg.Backend.PollInterval > 0 {
		clientOpts = append(clientOpts, recommend.WithPollInterval(cfg.Backend.PollInterval))
	}
	if cfg.Backend.MinChunkBytes > 0 {
		clientOpts = append(clientOpts, recommend.WithMinChunkBytes(cfg.Backend.MinChunkBytes))
	}
	client, err := recommend.New(cfg.Backend.BaseURL, clientOpts...)
	if err != nil {
		slog.Error("failed to create backend client", "err", err)
		return 1
	}

	// ── Speech recognition ────────────────────────────────────────────────────
	var recognizer speech.Recognizer = disabledRecognizer{}
	if cfg.Speech.GatewayURL != "" {
		recognizer, err = wsr.New(cfg.Speech.GatewayURL)
		if err != nil {
			slog.Error("failed to create speech recognizer", "err", err)
			return 1
		}
	}

	// ── Speech synthesis ──────────────────────────────────────────────────────
	var agent *playback.Agent
	if cfg.Synthesis.Endpoint != "" {
		var provider synth.Provider
		synthOpts := []synthremote.Option{}
		if cfg.Synthesis.Timeout > 0 {
			synthOpts = append(synthOpts, synthremote.WithTimeout(cfg.Synthesis.Timeout))
		}
		provider, err = synthremote.New(cfg.Synthesis.Endpoint, synthOpts...)
		if err != nil {
			slog.Error("failed to create synthesis provider", "err", err)
			return 1
		}
		agent = playback.New(provider, nil, playback.WithMetrics(metrics))
	}

	// ── Orchestrator ──────────────────────────────────────────────────────────
	capacity := cfg.History.Capacity
	if capacity <= 0 {
		capacity = history.DefaultCapacity
	}
	orchOpts := []orchestrator.Option{
		orchestrator.WithLedger(history.NewLedger(capacity)),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithStreaming(cfg.Streaming.Enabled),
		orchestrator.WithSpeechConfig(speech.Config{
			Language:       cfg.Speech.Language,
			InterimResults: cfg.Speech.InterimResults,
		}),
	}
	if cfg.Reveal.Interval > 0 {
		orchOpts = append(orchOpts, orchestrator.WithRevealInterval(cfg.Reveal.Interval))
	}
	if cfg.Speech.StopGrace > 0 {
		orchOpts = append(orchOpts, orchestrator.WithStopGrace(cfg.Speech.StopGrace))
	}
	if cfg.Backend.RequestTimeout > 0 {
		orchOpts = append(orchOpts, orchestrator.WithQueryTimeout(cfg.Backend.RequestTimeout))
	}
	var speaker orchestrator.Speaker
	if agent != nil {
		speaker = agent
	}
	orch := orchestrator.New(recognizer, client, speaker, orchOpts...)

	// ── HTTP server ───────────────────────────────────────────────────────────
	checks := health.New(health.Checker{Name: "backend", Check: client.Ping})
	srv := server.New(cfg.Server.ListenAddr, orch, checks, metrics)

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	orch.Close()
	if agent != nil {
		agent.Wait()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return 0
}

// disabledRecognizer stands in when no speech gateway is configured. Capture
// starts fail cleanly while the chat surface keeps working.
type disabledRecognizer struct{}

func (disabledRecognizer) Start(context.Context, speech.Config) (speech.Session, error) {
	return nil, fmt.Errorf("main: no speech gateway configured: %w", speech.ErrUnavailable)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        agentnow — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEndpoint("Backend", cfg.Backend.BaseURL)
	printEndpoint("Speech", cfg.Speech.GatewayURL)
	printEndpoint("Synthesis", cfg.Synthesis.Endpoint)
	if cfg.Streaming.Enabled {
		fmt.Printf("║  Streaming   : %-21s ║\n", "enabled")
	} else {
		fmt.Printf("║  Streaming   : %-21s ║\n", "disabled")
	}
	fmt.Printf("║  Listen addr : %-21s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEndpoint(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 21 {
		value = value[:18] + "…"
	}
	fmt.Printf("║  %-10s  : %-21s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
