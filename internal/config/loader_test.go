package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/must108/agentnow/internal/config"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":9000"
  log_level: debug
backend:
  base_url: http://localhost:8000
  request_timeout: 10s
  poll_interval: 1500ms
  min_chunk_bytes: 8192
  breaker:
    threshold: 5
    cool_down: 30s
speech:
  gateway_url: ws://localhost:9090/listen
  language: en-GB
  interim_results: true
  stop_grace: 120ms
synthesis:
  endpoint: http://localhost:5002/api/tts
  timeout: 15s
history:
  capacity: 50
reveal:
  interval: 20ms
streaming:
  enabled: true
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want :9000", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Backend.PollInterval != 1500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 1.5s", cfg.Backend.PollInterval)
	}
	if cfg.Backend.MinChunkBytes != 8192 {
		t.Errorf("MinChunkBytes = %d, want 8192", cfg.Backend.MinChunkBytes)
	}
	if cfg.Speech.Language != "en-GB" {
		t.Errorf("Language = %q, want en-GB", cfg.Speech.Language)
	}
	if !cfg.Speech.InterimResults {
		t.Error("InterimResults should be true")
	}
	if cfg.Reveal.Interval != 20*time.Millisecond {
		t.Errorf("Reveal.Interval = %v, want 20ms", cfg.Reveal.Interval)
	}
	if !cfg.Streaming.Enabled {
		t.Error("Streaming.Enabled should be true")
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	yaml := `
backend:
  base_url: http://localhost:8000
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default ListenAddr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("default LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Speech.Language != "en-US" {
		t.Errorf("default Language = %q, want en-US", cfg.Speech.Language)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
backend:
  base_url: http://localhost:8000
  base_urll: http://typo:8000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "base_urll") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestValidate_MissingBackendURL(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  log_level: info\n"))
	if err == nil {
		t.Fatal("expected error for missing backend.base_url, got nil")
	}
	if !strings.Contains(err.Error(), "backend.base_url") {
		t.Errorf("error should mention backend.base_url, got: %v", err)
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
backend:
  base_url: http://localhost:8000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown log level, got nil")
	}
	if !strings.Contains(err.Error(), "log level") {
		t.Errorf("error should mention log level, got: %v", err)
	}
}

func TestValidate_BadBackendScheme(t *testing.T) {
	t.Parallel()
	yaml := `
backend:
  base_url: ftp://localhost:8000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for non-http backend URL, got nil")
	}
	if !strings.Contains(err.Error(), "http or https") {
		t.Errorf("error should mention the allowed schemes, got: %v", err)
	}
}

func TestValidate_BadGatewayScheme(t *testing.T) {
	t.Parallel()
	yaml := `
backend:
  base_url: http://localhost:8000
speech:
  gateway_url: http://localhost:9090/listen
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for non-websocket gateway URL, got nil")
	}
	if !strings.Contains(err.Error(), "ws or wss") {
		t.Errorf("error should mention the allowed schemes, got: %v", err)
	}
}

func TestValidate_NegativeDurations(t *testing.T) {
	t.Parallel()
	yaml := `
backend:
  base_url: http://localhost:8000
  request_timeout: -1s
reveal:
  interval: -20ms
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative durations, got nil")
	}
	if !strings.Contains(err.Error(), "request_timeout") {
		t.Errorf("error should mention request_timeout, got: %v", err)
	}
	if !strings.Contains(err.Error(), "reveal.interval") {
		t.Errorf("error should mention reveal.interval, got: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("testdata/does-not-exist.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should not be valid")
	}
}
