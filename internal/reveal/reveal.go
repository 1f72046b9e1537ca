// Package reveal implements the timer-driven text-reveal ("typewriter")
// schedule: already-available suggestion text is disclosed one rune per tick
// to simulate live generation.
//
// The scheduler is a restartable, cancellable scheduled task bound to a
// generation counter. Arming a new reveal always disarms the previous one;
// a stale timer from generation N can never mutate state after generation
// N+1 has started.
package reveal

import (
	"sync"
	"time"
)

// DefaultInterval is the tick period between revealed runes. The exact value
// is cosmetic.
const DefaultInterval = 20 * time.Millisecond

// State is a snapshot of the reveal progress.
type State struct {
	// Source is the full text being revealed.
	Source string

	// Revealed is the currently disclosed prefix of Source.
	Revealed string

	// Active reports whether a reveal is still in progress.
	Active bool
}

// Option is a functional option for configuring a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the tick period. Defaults to [DefaultInterval].
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithOnChange registers a callback invoked with a fresh snapshot after
// every state change. The callback runs outside the scheduler's lock and
// must not call back into the scheduler synchronously from itself.
func WithOnChange(fn func(State)) Option {
	return func(s *Scheduler) { s.onChange = fn }
}

// Scheduler reveals one source text at a time. All methods are safe for
// concurrent use, though in practice the orchestrator is the only writer.
type Scheduler struct {
	interval time.Duration
	onChange func(State)

	mu     sync.Mutex
	gen    uint64
	source []rune
	prefix int
	active bool
	timer  *time.Timer
}

// New creates a Scheduler with no active reveal.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{interval: DefaultInterval}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Set replaces the source text. Any reveal in progress is cancelled first.
// A non-empty text restarts disclosure from a zero-length prefix; an empty
// text resets the display immediately without arming a timer.
func (s *Scheduler) Set(text string) {
	s.mu.Lock()
	s.disarmLocked()
	s.gen++
	s.source = []rune(text)
	s.prefix = 0
	s.active = len(s.source) > 0
	if s.active {
		gen := s.gen
		s.timer = time.AfterFunc(s.interval, func() { s.tick(gen) })
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// Cancel disarms any pending timer and deactivates the reveal, leaving the
// revealed prefix where it was. Called on teardown.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.disarmLocked()
	s.gen++
	s.active = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// State returns a snapshot of the current reveal progress.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// tick advances the prefix by one rune. Ticks from a superseded generation
// are discarded.
func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.active {
		s.mu.Unlock()
		return
	}

	s.prefix++
	if s.prefix >= len(s.source) {
		s.prefix = len(s.source)
		s.active = false
		s.timer = nil
	} else {
		s.timer = time.AfterFunc(s.interval, func() { s.tick(gen) })
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// disarmLocked stops the pending timer, if any. Must be called with s.mu held.
func (s *Scheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) snapshotLocked() State {
	return State{
		Source:   string(s.source),
		Revealed: string(s.source[:s.prefix]),
		Active:   s.active,
	}
}

func (s *Scheduler) notify(snap State) {
	if s.onChange != nil {
		s.onChange(snap)
	}
}
