package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader parses and validates configuration from r. Unknown YAML
// fields are rejected so typos surface at startup instead of silently
// selecting defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Speech.Language == "" {
		cfg.Speech.Language = "en-US"
	}
}

// Validate checks cfg for errors that would prevent a correct start. Soft
// issues that merely disable a feature are logged, not returned.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("config: unknown log level %q", cfg.Server.LogLevel))
	}
	if cfg.Backend.BaseURL == "" {
		errs = append(errs, errors.New("config: backend.base_url is required"))
	} else if err := validateHTTPURL("backend.base_url", cfg.Backend.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if cfg.Backend.RequestTimeout < 0 {
		errs = append(errs, errors.New("config: backend.request_timeout must not be negative"))
	}
	if cfg.Backend.PollInterval < 0 {
		errs = append(errs, errors.New("config: backend.poll_interval must not be negative"))
	}
	if cfg.Backend.MinChunkBytes < 0 {
		errs = append(errs, errors.New("config: backend.min_chunk_bytes must not be negative"))
	}
	if cfg.Backend.Breaker.Threshold < 0 {
		errs = append(errs, errors.New("config: backend.breaker.threshold must not be negative"))
	}
	if cfg.Backend.Breaker.CoolDown < 0 {
		errs = append(errs, errors.New("config: backend.breaker.cool_down must not be negative"))
	}
	if cfg.Speech.StopGrace < 0 {
		errs = append(errs, errors.New("config: speech.stop_grace must not be negative"))
	}
	if cfg.Synthesis.Timeout < 0 {
		errs = append(errs, errors.New("config: synthesis.timeout must not be negative"))
	}
	if cfg.History.Capacity < 0 {
		errs = append(errs, errors.New("config: history.capacity must not be negative"))
	}
	if cfg.Reveal.Interval < 0 {
		errs = append(errs, errors.New("config: reveal.interval must not be negative"))
	}

	if cfg.Speech.GatewayURL == "" {
		slog.Warn("no speech gateway configured, voice capture is disabled")
	} else if err := validateWSURL("speech.gateway_url", cfg.Speech.GatewayURL); err != nil {
		errs = append(errs, err)
	}
	if cfg.Synthesis.Endpoint == "" {
		slog.Warn("no synthesis endpoint configured, spoken playback is disabled")
	} else if err := validateHTTPURL("synthesis.endpoint", cfg.Synthesis.Endpoint); err != nil {
		errs = append(errs, err)
	}
	if cfg.Streaming.Enabled && cfg.Speech.GatewayURL == "" {
		slog.Warn("streaming is enabled but no speech gateway is configured")
	}

	return errors.Join(errs...)
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: %s must use http or https, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("config: %s is missing a host", field)
	}
	return nil
}

func validateWSURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", field, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("config: %s must use ws or wss, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("config: %s is missing a host", field)
	}
	return nil
}
