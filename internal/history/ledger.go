// Package history provides the bounded, most-recent-first ledger of past
// utterance/suggestion pairs.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/must108/agentnow/internal/suggestion"
)

// DefaultCapacity is the ledger bound used when none is configured.
const DefaultCapacity = 50

// Entry is a denormalized snapshot pairing an utterance with the suggestion
// it produced. Entries are never mutated after insertion; identity is by ID
// only.
type Entry struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Text      string             `json:"text"`
	UseCase   suggestion.UseCase `json:"use_case"`
	Utterance string             `json:"utterance"`
	CreatedAt time.Time          `json:"created_at"`
}

// Ledger is a bounded, prepend-ordered buffer of entries (newest first).
// Eviction happens on insert; [Ledger.Clear] is the only other removal path.
//
// All methods are safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

// NewLedger creates a ledger retaining at most capacity entries.
// Non-positive capacities fall back to [DefaultCapacity].
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// Record prepends e and truncates the ledger to its capacity, discarding the
// oldest entries beyond the bound. A missing ID or timestamp is filled in.
func (l *Ledger) Record(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	keep := l.entries
	if len(keep) >= l.capacity {
		keep = keep[:l.capacity-1]
	}

	// Copy to a fresh backing array so evicted entries do not pin memory for
	// the lifetime of the session.
	fresh := make([]Entry, 0, l.capacity)
	fresh = append(fresh, e)
	fresh = append(fresh, keep...)
	l.entries = fresh
	return e
}

// Clear empties the ledger unconditionally.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}

// Entries returns a copy of the current entries, newest first.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the current entry count.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
