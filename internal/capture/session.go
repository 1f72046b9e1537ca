// Package capture implements the transcript state machine for one
// user-initiated recording session.
//
// A [Session] accumulates confirmed ("final") fragments in arrival order and
// holds at most one unconfirmed ("interim") fragment, which each new result
// replaces. At termination the interim remainder is reconciled into the
// final buffer exactly once so that no heard text is silently dropped.
//
// Session is not safe for concurrent use; the orchestrator serialises all
// access as the single writer.
package capture

import (
	"strings"

	"github.com/must108/agentnow/pkg/speech"
)

// Session holds the live transcript buffers of one recording session.
type Session struct {
	final   string
	interim string
	running bool
}

// Begin clears both buffers and marks the session running.
func (s *Session) Begin() {
	s.final = ""
	s.interim = ""
	s.running = true
}

// End marks the session as no longer running. The buffers are left intact
// for finalization.
func (s *Session) End() {
	s.running = false
}

// Running reports whether the session is live.
func (s *Session) Running() bool {
	return s.running
}

// Apply folds one recognition result into the buffers: confirmed segments
// are appended to the final buffer, space-joined; the interim buffer is
// replaced with the event's unconfirmed remainder (which may be empty).
func (s *Session) Apply(res speech.Result) {
	var finalChunk, interimChunk strings.Builder
	for _, seg := range res.Segments {
		if seg.Final {
			finalChunk.WriteString(seg.Text)
		} else {
			interimChunk.WriteString(seg.Text)
		}
	}

	if fc := strings.TrimSpace(finalChunk.String()); fc != "" {
		s.appendFinal(fc)
	}
	s.interim = interimChunk.String()
}

// Display returns the live-display text: the final buffer concatenated with
// the current interim fragment.
func (s *Session) Display() string {
	return strings.TrimSpace(s.final + " " + s.interim)
}

// Finalize reconciles any unflushed interim fragment into the final buffer
// and returns the resulting utterance. ok is false when the trimmed
// utterance is empty, in which case the cycle ends with no downstream work.
// Finalize is idempotent with respect to the interim flush: the fragment is
// appended at most once.
func (s *Session) Finalize() (utterance string, ok bool) {
	if it := strings.TrimSpace(s.interim); it != "" {
		s.appendFinal(it)
	}
	s.interim = ""

	utterance = strings.TrimSpace(s.final)
	return utterance, utterance != ""
}

func (s *Session) appendFinal(fragment string) {
	if s.final == "" {
		s.final = fragment
		return
	}
	s.final += " " + fragment
}
