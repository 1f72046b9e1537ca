// Package playback speaks suggestion text out loud.
//
// The [Agent] requests synthesized audio from a [synth.Provider] and hands
// the clip to a [Player]. Speak runs asynchronously and swallows failures
// after logging them, so a broken voice pipeline never stalls suggestion
// display or history recording.
package playback

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/must108/agentnow/internal/observe"
	"github.com/must108/agentnow/pkg/synth"
)

// defaultTimeout bounds one synthesize-and-play round trip.
const defaultTimeout = 30 * time.Second

// Player renders an audio clip. Implementations should block until playback
// finishes or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, mimeType string, data []byte) error
}

// PlayerFunc adapts a function to the [Player] interface.
type PlayerFunc func(ctx context.Context, mimeType string, data []byte) error

// Play calls f.
func (f PlayerFunc) Play(ctx context.Context, mimeType string, data []byte) error {
	return f(ctx, mimeType, data)
}

// DiscardPlayer drops every clip. Used when no audio output is wired up.
var DiscardPlayer Player = PlayerFunc(func(context.Context, string, []byte) error {
	return nil
})

// Agent synthesizes and plays suggestion text. Safe for concurrent use.
type Agent struct {
	provider synth.Provider
	player   Player
	metrics  *observe.Metrics
	timeout  time.Duration

	wg sync.WaitGroup
}

// Option customises an [Agent].
type Option func(*Agent)

// WithTimeout bounds one synthesize-and-play round trip.
func WithTimeout(d time.Duration) Option {
	return func(a *Agent) { a.timeout = d }
}

// WithMetrics sets the metrics instance used for instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// New creates an Agent that synthesizes through provider and renders through
// player. A nil player falls back to [DiscardPlayer].
func New(provider synth.Provider, player Player, opts ...Option) *Agent {
	if player == nil {
		player = DiscardPlayer
	}
	a := &Agent{
		provider: provider,
		player:   player,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// Speak synthesizes text and plays the resulting clip in the background.
// Empty text is ignored. Failures are logged and dropped; Speak never blocks
// the caller and never returns an error.
func (a *Agent) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	a.wg.Add(1)
	a.metrics.PendingPlaybacks.Add(context.Background(), 1)

	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		defer a.metrics.PendingPlaybacks.Add(ctx, -1)

		start := time.Now()
		clip, err := a.provider.Synthesize(ctx, text)
		a.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			slog.Warn("speech synthesis failed", "error", err)
			return
		}

		if err := a.player.Play(ctx, clip.MIME, clip.Data); err != nil {
			slog.Warn("audio playback failed", "error", err)
		}
	}()
}

// Wait blocks until all in-flight playbacks finish. Called during shutdown.
func (a *Agent) Wait() {
	a.wg.Wait()
}
