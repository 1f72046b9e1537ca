package history

import (
	"fmt"
	"testing"

	"github.com/must108/agentnow/internal/suggestion"
)

func TestRecordPrependOrder(t *testing.T) {
	t.Parallel()

	l := NewLedger(10)
	for i := 0; i < 3; i++ {
		l.Record(Entry{Utterance: fmt.Sprintf("u%d", i)})
	}

	got := l.Entries()
	if len(got) != 3 {
		t.Fatalf("want 3 entries, got %d", len(got))
	}
	for i, want := range []string{"u2", "u1", "u0"} {
		if got[i].Utterance != want {
			t.Errorf("entries[%d].Utterance = %q, want %q", i, got[i].Utterance, want)
		}
	}
}

func TestCapacityBound(t *testing.T) {
	t.Parallel()

	const capacity = 5
	l := NewLedger(capacity)
	for i := 0; i < capacity+7; i++ {
		l.Record(Entry{Utterance: fmt.Sprintf("u%d", i)})
		if l.Len() > capacity {
			t.Fatalf("ledger exceeded capacity: %d > %d", l.Len(), capacity)
		}
	}

	got := l.Entries()
	if len(got) != capacity {
		t.Fatalf("want %d entries, got %d", capacity, len(got))
	}
	// The most recent `capacity` entries, newest first.
	for i := 0; i < capacity; i++ {
		want := fmt.Sprintf("u%d", capacity+7-1-i)
		if got[i].Utterance != want {
			t.Errorf("entries[%d].Utterance = %q, want %q", i, got[i].Utterance, want)
		}
	}
}

func TestIDsAssignedAndUnique(t *testing.T) {
	t.Parallel()

	l := NewLedger(10)
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		e := l.Record(Entry{Text: "same text", Title: "same title"})
		if e.ID == "" {
			t.Fatal("entry ID not assigned")
		}
		if seen[e.ID] {
			t.Fatalf("duplicate entry ID %q", e.ID)
		}
		seen[e.ID] = true
		if e.CreatedAt.IsZero() {
			t.Fatal("CreatedAt not assigned")
		}
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	l := NewLedger(10)
	l.Record(Entry{Utterance: "a", UseCase: suggestion.UseCaseExisting})
	l.Record(Entry{Utterance: "b"})
	l.Clear()

	if l.Len() != 0 {
		t.Fatalf("want empty ledger, got %d entries", l.Len())
	}

	// The ledger remains usable after a clear.
	l.Record(Entry{Utterance: "c"})
	if got := l.Entries(); len(got) != 1 || got[0].Utterance != "c" {
		t.Fatalf("unexpected entries after clear: %+v", got)
	}
}

func TestDefaultCapacity(t *testing.T) {
	t.Parallel()

	l := NewLedger(0)
	for i := 0; i < DefaultCapacity+3; i++ {
		l.Record(Entry{})
	}
	if l.Len() != DefaultCapacity {
		t.Fatalf("want %d, got %d", DefaultCapacity, l.Len())
	}
}
