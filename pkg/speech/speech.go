// Package speech defines the contract for continuous speech-recognition
// capabilities consumed by the orchestrator.
//
// A [Recognizer] wraps a real-time recognition engine (a remote gateway, a
// browser bridge, or a local engine) and exposes a uniform session
// abstraction. The central type is [Session]: once started, a session emits
// incremental [Result] events — each carrying zero or more segments marked
// final or interim — and terminates by closing its result channel. After
// termination [Session.Err] reports whether the session ended cleanly,
// was aborted, or failed.
//
// The package does not implement recognition itself; it only specifies the
// event contract the orchestrator depends on.
package speech

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by [Recognizer.Start] when the recognition
// capability is not available in the host environment. Callers should treat
// voice interaction as disabled rather than retrying.
var ErrUnavailable = errors.New("speech: recognition capability unavailable")

// ErrorCode classifies a recognition failure using the capability's own
// error vocabulary.
type ErrorCode string

const (
	// CodeAborted signals a user- or system-initiated abort. It is expected
	// after a deliberate stop and must not be surfaced as a failure.
	CodeAborted ErrorCode = "aborted"

	// CodeAudioCapture signals that the microphone could not be acquired.
	CodeAudioCapture ErrorCode = "audio-capture"

	// CodeNetwork signals a transport failure between the capability and its
	// backing engine.
	CodeNetwork ErrorCode = "network"

	// CodeNoSpeech signals that the engine detected no speech before giving up.
	CodeNoSpeech ErrorCode = "no-speech"
)

// Error is a recognition failure carrying the capability's error code.
type Error struct {
	Code    ErrorCode
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return "speech: " + string(e.Code)
	}
	return "speech: " + string(e.Code) + ": " + e.Message
}

// IsAborted reports whether err is a recognition error with [CodeAborted].
// Aborts are the expected outcome of a deliberate stop and are suppressed by
// callers rather than reported.
func IsAborted(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == CodeAborted
}

// Segment is one transcript fragment within a [Result].
type Segment struct {
	// Text is the recognised text of this fragment.
	Text string

	// Final marks the fragment as confirmed. Interim fragments may be revised
	// by later results and must replace, not accumulate.
	Final bool
}

// Result is one incremental recognition event. Segments appear in the order
// the engine produced them.
type Result struct {
	Segments []Segment
}

// Config describes recognition hints for a new session.
type Config struct {
	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// Empty lets the capability use its default.
	Language string

	// InterimResults requests low-latency unconfirmed fragments in addition
	// to finals. Capabilities that cannot produce interims emit finals only.
	InterimResults bool
}

// Session is one live recognition stream. The microphone (or equivalent
// input) is exclusively held for the lifetime of the session and released on
// [Session.Stop] or [Session.Abort].
//
// Implementations must be safe for concurrent use.
type Session interface {
	// Results returns a read-only channel of incremental recognition events,
	// delivered in arrival order. The channel is closed when the session
	// terminates; check [Session.Err] afterwards.
	Results() <-chan Result

	// Chunks returns a read-only channel of short encoded audio segments
	// captured during the session, suitable for opportunistic upload. The
	// channel is closed when the session terminates. Capabilities that do not
	// expose raw audio return nil.
	Chunks() <-chan []byte

	// Stop requests graceful termination. The capability may flush one last
	// result before closing the Results channel; the transition happens
	// asynchronously, not inside Stop. Stop is idempotent.
	Stop() error

	// Abort terminates immediately, discarding pending audio. The session
	// ends with a [CodeAborted] error. Abort is idempotent and safe to call
	// after Stop.
	Abort() error

	// Err returns the terminal error of the session, or nil for a clean end.
	// Valid only after the Results channel has been closed.
	Err() error
}

// Recognizer is the abstraction over any speech-recognition capability.
type Recognizer interface {
	// Start opens a new recognition session. Returns [ErrUnavailable] (
	// possibly wrapped) when the capability cannot run in this environment.
	// The caller owns the session and must end it with Stop or Abort.
	Start(ctx context.Context, cfg Config) (Session, error)
}
