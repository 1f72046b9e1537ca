// Package orchestrator coordinates the live voice interaction cycle: capture
// a spoken turn, finalize it into one utterance, fetch a recommendation,
// sanitize and reveal it, record it in history, and speak it back.
//
// Two independent asynchronous producers feed the orchestrator: the speech
// recognition session and the recommendation backend. Both are reconciled by
// a single-writer state reducer guarded by one mutex. Every session is
// stamped with a monotonically increasing epoch; asynchronous results carry
// the epoch of the session that produced them and are discarded at apply
// time when a newer session has started. A stale network response can
// therefore never be attributed to a newer utterance or resurrect state the
// user has already moved past.
//
// All exported methods are safe for concurrent use.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/must108/agentnow/internal/capture"
	"github.com/must108/agentnow/internal/history"
	"github.com/must108/agentnow/internal/observe"
	"github.com/must108/agentnow/internal/recommend"
	"github.com/must108/agentnow/internal/reveal"
	"github.com/must108/agentnow/internal/suggestion"
	"github.com/must108/agentnow/pkg/speech"
)

const (
	// defaultStopGrace lets the recognition capability flush one last
	// fragment before termination is requested.
	defaultStopGrace = 120 * time.Millisecond

	// defaultQueryTimeout bounds one recommendation query so a hung backend
	// cannot wedge the capture cycle.
	defaultQueryTimeout = 30 * time.Second
)

// Listener receives typed notifications from the orchestrator. Hosts
// register a listener instead of subscribing to any broadcast channel.
// Callbacks run on orchestrator goroutines and must return quickly.
type Listener interface {
	// UtteranceFinalized is called once per completed capture session with
	// the finalized utterance.
	UtteranceFinalized(utterance string)

	// SuggestionUpdated is called whenever the latest suggestion changes.
	SuggestionUpdated(sug suggestion.Suggestion)
}

// Speaker plays suggestion text out loud. Satisfied by *playback.Agent.
type Speaker interface {
	Speak(text string)
}

// State is a read-only snapshot of the orchestrator for the presentation
// layer.
type State struct {
	// Running reports whether a capture session is live.
	Running bool

	// Loading reports whether a recommendation request is in flight.
	Loading bool

	// LastError is the transient error slot, cleared on each new session.
	LastError string

	// LastUtterance is the most recently finalized (or live-transcribed)
	// utterance, shown while the request is in flight.
	LastUtterance string

	// DisplayText is the live transcript of the running session.
	DisplayText string

	// Latest is the current suggestion, nil before the first response.
	Latest *suggestion.Suggestion

	// Reveal is the typewriter progress for the latest suggestion text.
	Reveal reveal.State
}

// Orchestrator owns all core state of one interaction surface. Construct
// with [New]; one instance per mounted session.
type Orchestrator struct {
	recognizer speech.Recognizer
	client     *recommend.Client
	speaker    Speaker
	ledger     *history.Ledger
	reveal     *reveal.Scheduler
	metrics    *observe.Metrics

	speechCfg    speech.Config
	queryTimeout time.Duration
	stopGrace    time.Duration
	streaming    bool

	mu            sync.Mutex
	epoch         uint64
	session       capture.Session
	handle        speech.Session
	stopPending   bool
	streamCancel  context.CancelFunc
	loading       bool
	lastError     string
	lastUtterance string
	liveUtterance string
	liveText      string
	latest        *suggestion.Suggestion
	listeners     []Listener

	wg sync.WaitGroup
}

// Option configures an [Orchestrator] during construction.
type Option func(*Orchestrator)

// WithLedger replaces the default 50-entry history ledger.
func WithLedger(l *history.Ledger) Option {
	return func(o *Orchestrator) { o.ledger = l }
}

// WithRevealInterval sets the typewriter tick period.
func WithRevealInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.reveal = reveal.New(reveal.WithInterval(d)) }
}

// WithSpeechConfig sets the recognition hints passed to the recognizer.
func WithSpeechConfig(cfg speech.Config) Option {
	return func(o *Orchestrator) { o.speechCfg = cfg }
}

// WithQueryTimeout bounds one recommendation query.
func WithQueryTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.queryTimeout = d
		}
	}
}

// WithStopGrace sets the delay between a stop request and termination of the
// recognition session. Zero or negative terminates immediately.
func WithStopGrace(d time.Duration) Option {
	return func(o *Orchestrator) { o.stopGrace = d }
}

// WithStreaming enables the chunk-upload and live-state-poll strategy for
// sessions whose recognizer exposes raw audio.
func WithStreaming(enabled bool) Option {
	return func(o *Orchestrator) { o.streaming = enabled }
}

// WithMetrics sets the metrics instance used for instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithListener registers a listener for utterance and suggestion events.
func WithListener(l Listener) Option {
	return func(o *Orchestrator) { o.listeners = append(o.listeners, l) }
}

// New creates an Orchestrator wired to the given capabilities. speaker may
// be nil when no audio output is desired.
func New(recognizer speech.Recognizer, client *recommend.Client, speaker Speaker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		recognizer:   recognizer,
		client:       client,
		speaker:      speaker,
		speechCfg:    speech.Config{InterimResults: true},
		queryTimeout: defaultQueryTimeout,
		stopGrace:    defaultStopGrace,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.ledger == nil {
		o.ledger = history.NewLedger(history.DefaultCapacity)
	}
	if o.reveal == nil {
		o.reveal = reveal.New()
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Start begins a new capture session. Starting while a session is already
// running is a no-op. The error slot, the latest suggestion, and the reveal
// are all reset so the surface reflects a fresh cycle. Returns an error when
// the recognition capability is unavailable; the orchestrator stays idle and
// the failure is also placed in the error slot.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.session.Running() {
		o.mu.Unlock()
		return nil
	}

	o.epoch++
	epoch := o.epoch
	o.lastError = ""
	o.lastUtterance = ""
	o.liveUtterance = ""
	o.liveText = ""
	o.latest = nil
	o.loading = false
	o.stopPending = false
	o.session.Begin()
	// reveal.Set never calls back into the orchestrator, so holding the
	// state lock across it keeps the reset atomic with the epoch bump.
	o.reveal.Set("")
	o.mu.Unlock()

	handle, err := o.recognizer.Start(ctx, o.speechCfg)

	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch {
		// A concurrent Close superseded this session before acquisition
		// finished. Release the capability and walk away.
		if handle != nil {
			_ = handle.Abort()
		}
		return nil
	}
	if err != nil {
		o.session.End()
		o.lastError = err.Error()
		return err
	}

	o.handle = handle
	o.metrics.ActiveCaptures.Add(ctx, 1)

	if o.streaming && handle.Chunks() != nil {
		streamCtx, cancel := context.WithCancel(context.Background())
		o.streamCancel = cancel
		o.wg.Add(1)
		go o.runStream(streamCtx, epoch, handle)
	}

	o.wg.Add(1)
	go o.pump(epoch, handle, time.Now())

	// A stop request arrived while acquisition was still in flight. Honor
	// it now that the handle exists, through the same grace path Stop uses.
	if o.stopPending {
		o.stopPending = false
		o.terminate(handle)
	}
	return nil
}

// Stop requests termination of the running session. Stopping while no
// session is running is a no-op. Termination and all follow-up processing
// happen asynchronously when the recognition session ends; a short grace
// delay lets the capability flush a final fragment first.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.session.Running() {
		o.mu.Unlock()
		return
	}
	if o.handle == nil {
		// Capability acquisition is still in flight. Record the intent so
		// Start terminates the fresh handle as soon as it arrives.
		o.stopPending = true
		o.mu.Unlock()
		return
	}
	handle := o.handle
	o.mu.Unlock()

	o.terminate(handle)
}

// terminate issues a graceful stop on handle, after the configured grace
// delay when one is set. Safe to call with o.mu held since the stop itself
// always runs on another goroutine or after the delay.
func (o *Orchestrator) terminate(handle speech.Session) {
	if o.stopGrace <= 0 {
		go func() { _ = handle.Stop() }()
		return
	}
	time.AfterFunc(o.stopGrace, func() { _ = handle.Stop() })
}

// Close tears the orchestrator down: any running session is aborted, the
// reveal timer is disarmed, and all internal goroutines are awaited. The
// running flag is forced to false even if the capability never signals
// termination.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.epoch++
	o.session.End()
	handle := o.handle
	o.handle = nil
	cancel := o.streamCancel
	o.streamCancel = nil
	o.loading = false
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if handle != nil {
		_ = handle.Abort()
	}
	o.reveal.Cancel()
	o.wg.Wait()
}

// Ask issues a typed chat query through the same normalization, history, and
// sanitization path as voice. The latest-suggestion view and the reveal are
// only updated when no capture session is running, so a typed query cannot
// clobber a live voice cycle.
func (o *Orchestrator) Ask(ctx context.Context, text string) (suggestion.Suggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, o.queryTimeout)
	defer cancel()

	sug, err := o.client.Query(ctx, text, recommend.ModeChat)
	if err != nil {
		o.mu.Lock()
		o.lastError = err.Error()
		o.mu.Unlock()
		return suggestion.Suggestion{}, err
	}

	o.ledger.Record(history.Entry{
		Title:     sug.Title,
		Text:      sug.Text,
		UseCase:   sug.UseCase,
		Utterance: text,
	})
	o.metrics.RecordSuggestion(ctx, string(sug.UseCase))

	o.mu.Lock()
	idle := !o.session.Running()
	if idle {
		o.lastUtterance = text
		o.latest = &sug
		o.reveal.Set(sug.Text)
	}
	o.mu.Unlock()

	if idle {
		o.notifySuggestion(sug)
	}
	return sug, nil
}

// History returns a copy of the ledger entries, newest first.
func (o *Orchestrator) History() []history.Entry {
	return o.ledger.Entries()
}

// ClearHistory empties the ledger. A pure user action.
func (o *Orchestrator) ClearHistory() {
	o.ledger.Clear()
}

// Snapshot returns the current orchestrator state for display.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := State{
		Running:       o.session.Running(),
		Loading:       o.loading,
		LastError:     o.lastError,
		LastUtterance: o.lastUtterance,
		DisplayText:   o.session.Display(),
		Reveal:        o.reveal.State(),
	}
	if o.latest != nil {
		latest := *o.latest
		st.Latest = &latest
	}
	return st
}

// pump applies recognition events in arrival order until the session's
// result channel closes, then finishes the cycle.
func (o *Orchestrator) pump(epoch uint64, handle speech.Session, started time.Time) {
	defer o.wg.Done()

	for res := range handle.Results() {
		o.applyResult(epoch, res)
	}

	ctx := context.Background()
	o.metrics.ActiveCaptures.Add(ctx, -1)
	o.metrics.CaptureDuration.Record(ctx, time.Since(started).Seconds())

	o.finishSession(epoch, handle.Err())
}

// applyResult folds one recognition event into the capture buffers. Events
// from superseded sessions are discarded.
func (o *Orchestrator) applyResult(epoch uint64, res speech.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.epoch || !o.session.Running() {
		return
	}
	o.session.Apply(res)
}

// finishSession handles the termination of a recognition session: on a clean
// end the interim remainder is reconciled and the utterance dispatched; an
// abort is suppressed; any other terminal error lands in the error slot. A
// superseded session only has its stream loop cancelled.
func (o *Orchestrator) finishSession(epoch uint64, termErr error) {
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return
	}

	o.session.End()
	o.handle = nil
	if o.streamCancel != nil {
		o.streamCancel()
		o.streamCancel = nil
	}

	if termErr != nil {
		if !speech.IsAborted(termErr) {
			o.lastError = termErr.Error()
		}
		o.mu.Unlock()
		return
	}

	utterance, ok := o.session.Finalize()
	if !ok {
		o.mu.Unlock()
		return
	}

	o.lastUtterance = utterance
	o.loading = true
	o.mu.Unlock()

	o.metrics.Utterances.Add(context.Background(), 1)
	o.notifyUtterance(utterance)

	o.wg.Add(1)
	go o.dispatch(epoch, utterance)
}

// dispatch queries the backend for one finalized utterance and applies the
// response unless a newer session has started in the meantime.
func (o *Orchestrator) dispatch(epoch uint64, utterance string) {
	defer o.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), o.queryTimeout)
	defer cancel()

	sug, err := o.client.Query(ctx, utterance, recommend.ModeVoice)

	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return
	}
	o.loading = false
	if err != nil {
		o.lastError = err.Error()
		o.mu.Unlock()
		return
	}
	o.latest = &sug
	o.reveal.Set(sug.Text)
	o.mu.Unlock()

	o.metrics.RecordSuggestion(ctx, string(sug.UseCase))
	o.ledger.Record(history.Entry{
		Title:     sug.Title,
		Text:      sug.Text,
		UseCase:   sug.UseCase,
		Utterance: utterance,
	})
	o.notifySuggestion(sug)
	o.speak(sug.Text)
}

// speak forwards text to the playback agent when one is configured.
func (o *Orchestrator) speak(text string) {
	if o.speaker != nil {
		o.speaker.Speak(text)
	}
}

func (o *Orchestrator) notifyUtterance(utterance string) {
	for _, l := range o.listeners {
		l.UtteranceFinalized(utterance)
	}
}

func (o *Orchestrator) notifySuggestion(sug suggestion.Suggestion) {
	for _, l := range o.listeners {
		l.SuggestionUpdated(sug)
	}
}
