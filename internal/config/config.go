// Package config provides the configuration schema and YAML loader for the
// agentnow orchestrator service.
package config

import "time"

// LogLevel controls log verbosity for the service.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Speech    SpeechConfig    `yaml:"speech"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	History   HistoryConfig   `yaml:"history"`
	Reveal    RevealConfig    `yaml:"reveal"`
	Streaming StreamingConfig `yaml:"streaming"`
}

// ServerConfig holds network and logging settings for the control API.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// BackendConfig describes the recommendation backend.
type BackendConfig struct {
	// BaseURL is the root of the recommendation API (e.g.,
	// "http://localhost:8000"). Required.
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds one backend request. Zero uses the client default.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// PollInterval is the live-state polling cadence in streaming mode.
	// Zero uses the client default of 1.5s.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MinChunkBytes is the smallest audio segment worth uploading. Zero uses
	// the client default of 8 KiB.
	MinChunkBytes int `yaml:"min_chunk_bytes"`

	// Breaker tunes the circuit breaker guarding backend calls.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the backend circuit breaker. Zero values select the
// breaker's own defaults.
type BreakerConfig struct {
	// Threshold is the consecutive-failure count that opens the circuit.
	Threshold int `yaml:"threshold"`

	// CoolDown is how long the circuit stays open before probing.
	CoolDown time.Duration `yaml:"cool_down"`
}

// SpeechConfig describes the speech-recognition gateway.
type SpeechConfig struct {
	// GatewayURL is the websocket endpoint of the recognition gateway (e.g.,
	// "ws://localhost:9090/listen"). Empty disables voice capture; the chat
	// surface keeps working.
	GatewayURL string `yaml:"gateway_url"`

	// Language is the BCP-47 recognition language hint (e.g., "en-US").
	Language string `yaml:"language"`

	// InterimResults requests low-latency unconfirmed fragments.
	InterimResults bool `yaml:"interim_results"`

	// StopGrace is the delay between a stop request and termination of the
	// recognition session, letting the engine flush a final fragment.
	StopGrace time.Duration `yaml:"stop_grace"`
}

// SynthesisConfig describes the speech-synthesis service.
type SynthesisConfig struct {
	// Endpoint is the HTTP synthesis endpoint. Empty disables playback.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds one synthesis request. Zero uses the provider default.
	Timeout time.Duration `yaml:"timeout"`
}

// HistoryConfig tunes the history ledger.
type HistoryConfig struct {
	// Capacity is the maximum retained entry count. Zero uses the default
	// of 50.
	Capacity int `yaml:"capacity"`
}

// RevealConfig tunes the typewriter reveal.
type RevealConfig struct {
	// Interval is the tick period between revealed characters. Zero uses
	// the default of 20ms.
	Interval time.Duration `yaml:"interval"`
}

// StreamingConfig toggles the chunk-upload and live-state-poll strategy.
type StreamingConfig struct {
	// Enabled turns streaming on for recognizers that expose raw audio.
	Enabled bool `yaml:"enabled"`
}
