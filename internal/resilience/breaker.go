// Package resilience protects the recommendation backend from request storms
// during outages.
//
// The single type is [Breaker], a three-state circuit breaker
// (closed → open → half-open). While open, recommendation queries fail fast
// with [ErrOpen] instead of tying up the capture cycle in doomed network
// calls; after a cool-down a limited number of probes decide whether the
// backend has recovered.
//
// Breaker is safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: backend circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards all calls; the normal state.
	Closed State = iota

	// Open rejects calls immediately until the cool-down elapses.
	Open

	// HalfOpen forwards a bounded number of probe calls after the cool-down.
	HalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds tuning knobs for a [Breaker]. Zero values select defaults.
type Config struct {
	// Name labels the breaker in log messages.
	Name string

	// Threshold is the consecutive-failure count that opens the breaker.
	// Default: 5.
	Threshold int

	// CoolDown is how long the breaker stays open before probing.
	// Default: 30s.
	CoolDown time.Duration

	// ProbeBudget caps the probe calls allowed in the half-open state.
	// Default: 2.
	ProbeBudget int
}

// Breaker implements the three-state circuit breaker pattern.
type Breaker struct {
	name        string
	threshold   int
	coolDown    time.Duration
	probeBudget int

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

// New creates a Breaker from cfg, applying defaults for zero fields.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 2
	}
	return &Breaker{
		name:        cfg.Name,
		threshold:   cfg.Threshold,
		coolDown:    cfg.CoolDown,
		probeBudget: cfg.ProbeBudget,
	}
}

// Do runs fn unless the breaker is rejecting calls, in which case it returns
// [ErrOpen] without invoking fn. The error returned by fn is passed through.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()
	b.settle(probe, err)
	return err
}

// admit decides whether a call may proceed, handling the open→half-open
// transition. It reports whether the admitted call is a half-open probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.coolDown {
			return false, ErrOpen
		}
		b.state = HalfOpen
		b.probes = 0
		slog.Info("circuit entering half-open", "name", b.name)
		fallthrough
	case HalfOpen:
		if b.probes >= b.probeBudget {
			return false, ErrOpen
		}
		b.probes++
		return true, nil
	default:
		return false, nil
	}
}

// settle records the outcome of an admitted call.
func (b *Breaker) settle(probe bool, callErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if callErr != nil {
		b.openedAt = time.Now()
		if probe || b.failuresInc() >= b.threshold {
			if b.state != Open {
				slog.Warn("circuit opened", "name", b.name, "failures", b.failures)
			}
			b.state = Open
		}
		return
	}

	if probe {
		// One successful probe is enough to close again.
		b.state = Closed
		slog.Info("circuit closed after probe", "name", b.name)
	}
	b.failures = 0
}

// failuresInc bumps and returns the consecutive-failure counter.
// Must be called with b.mu held.
func (b *Breaker) failuresInc() int {
	b.failures++
	return b.failures
}

// State returns the breaker's current state. An open breaker whose cool-down
// has elapsed reports [HalfOpen]; the transition itself happens on the next
// [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open && time.Since(b.openedAt) >= b.coolDown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [Closed], clearing failure accounting.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failures = 0
	b.probes = 0
}
