// Package mock provides scripted speech.Recognizer and speech.Session
// implementations for tests.
package mock

import (
	"context"
	"sync"

	"github.com/must108/agentnow/pkg/speech"
)

// Recognizer is a scripted speech.Recognizer. Each call to Start produces a
// fresh [Session] that tests drive manually via Emit/End/Fail.
type Recognizer struct {
	mu sync.Mutex

	// StartErr, when non-nil, is returned by Start instead of a session.
	StartErr error

	sessions []*Session
}

var _ speech.Recognizer = (*Recognizer)(nil)

// Start returns a new scripted session, or StartErr if set.
func (r *Recognizer) Start(_ context.Context, _ speech.Config) (speech.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.StartErr != nil {
		return nil, r.StartErr
	}
	s := NewSession()
	r.sessions = append(r.sessions, s)
	return s, nil
}

// StartCount returns how many sessions have been started.
func (r *Recognizer) StartCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Last returns the most recently started session, or nil.
func (r *Recognizer) Last() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 0 {
		return nil
	}
	return r.sessions[len(r.sessions)-1]
}

// Session is a scripted speech.Session.
type Session struct {
	results chan speech.Result
	chunks  chan []byte

	mu      sync.Mutex
	err     error
	ended   bool
	stopped bool
	aborted bool
}

var _ speech.Session = (*Session)(nil)

// NewSession creates an open scripted session.
func NewSession() *Session {
	return &Session{
		results: make(chan speech.Result, 64),
		chunks:  make(chan []byte, 64),
	}
}

// Results implements speech.Session.
func (s *Session) Results() <-chan speech.Result { return s.results }

// Chunks implements speech.Session.
func (s *Session) Chunks() <-chan []byte { return s.chunks }

// Emit delivers a raw result event.
func (s *Session) Emit(res speech.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.results <- res
}

// EmitFinal delivers a single final segment.
func (s *Session) EmitFinal(text string) {
	s.Emit(speech.Result{Segments: []speech.Segment{{Text: text, Final: true}}})
}

// EmitInterim delivers a single interim segment.
func (s *Session) EmitInterim(text string) {
	s.Emit(speech.Result{Segments: []speech.Segment{{Text: text}}})
}

// EmitChunk delivers an encoded audio segment.
func (s *Session) EmitChunk(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.chunks <- chunk
}

// End terminates the session cleanly.
func (s *Session) End() { s.endWith(nil) }

// Fail terminates the session with a recognition error.
func (s *Session) Fail(code speech.ErrorCode, msg string) {
	s.endWith(&speech.Error{Code: code, Message: msg})
}

// Stop implements speech.Session. The scripted session terminates cleanly on
// Stop, mimicking a capability that flushes and ends.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.endWith(nil)
	return nil
}

// Abort implements speech.Session. The session ends with an aborted error.
func (s *Session) Abort() error {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()
	s.endWith(&speech.Error{Code: speech.CodeAborted})
	return nil
}

// Err implements speech.Session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stopped reports whether Stop was called.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Aborted reports whether Abort was called.
func (s *Session) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

func (s *Session) endWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	close(s.results)
	close(s.chunks)
}
