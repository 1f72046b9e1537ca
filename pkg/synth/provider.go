// Package synth defines the Provider interface for speech-synthesis
// backends.
//
// A synth provider wraps a voice-synthesis service and exposes a single
// batch operation: text in, encoded audio clip out. Playback of the clip is
// out of scope for providers; see the playback package for the agent that
// drives it.
//
// Implementations must be safe for concurrent use.
package synth

import "context"

// Clip is one synthesised audio payload.
type Clip struct {
	// MIME is the content type of the payload (e.g., "audio/mpeg").
	MIME string

	// Data is the encoded audio.
	Data []byte
}

// Provider is the abstraction over any speech-synthesis backend.
type Provider interface {
	// Synthesize renders text into an audio clip. Implementations must
	// respect ctx cancellation and return an error on any non-success
	// response rather than a partial clip.
	Synthesize(ctx context.Context, text string) (Clip, error)
}
