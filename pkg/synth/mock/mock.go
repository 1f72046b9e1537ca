// Package mock provides a scripted synth.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/must108/agentnow/pkg/synth"
)

// Provider is a scripted synth.Provider that records requests.
type Provider struct {
	mu sync.Mutex

	// Clip is returned on success.
	Clip synth.Clip

	// Err, when non-nil, is returned instead of Clip.
	Err error

	requests []string
}

var _ synth.Provider = (*Provider)(nil)

// Synthesize records text and returns the scripted result.
func (p *Provider) Synthesize(_ context.Context, text string) (synth.Clip, error) {
	p.mu.Lock()
	p.requests = append(p.requests, text)
	p.mu.Unlock()

	if p.Err != nil {
		return synth.Clip{}, p.Err
	}
	return p.Clip, nil
}

// Requests returns a copy of all texts synthesised so far.
func (p *Provider) Requests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.requests))
	copy(out, p.requests)
	return out
}
