// Package remote provides a synth.Provider backed by an HTTP synthesis
// endpoint: POST {"text": ...} in, binary audio (typically audio/mpeg) out.
// Non-success responses carry a structured JSON error payload which is
// surfaced as an error, never as audio.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/must108/agentnow/pkg/synth"
)

const (
	defaultTimeout = 15 * time.Second

	// maxClipBytes bounds the synthesised payload size to protect against a
	// misbehaving endpoint streaming without end.
	maxClipBytes = 16 << 20
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 15s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements synth.Provider against a remote HTTP endpoint.
type Provider struct {
	endpoint   string
	httpClient *http.Client
}

var _ synth.Provider = (*Provider)(nil)

// New creates a Provider targeting endpoint (the full synthesis URL).
func New(endpoint string, opts ...Option) (*Provider, error) {
	if endpoint == "" {
		return nil, errors.New("remote: endpoint must not be empty")
	}
	p := &Provider{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// synthesisRequest is the JSON request body.
type synthesisRequest struct {
	Text string `json:"text"`
}

// errorPayload is the structured error body returned on non-success status.
type errorPayload struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// Synthesize renders text into an audio clip.
func (p *Provider) Synthesize(ctx context.Context, text string) (synth.Clip, error) {
	body, err := json.Marshal(synthesisRequest{Text: text})
	if err != nil {
		return synth.Clip{}, fmt.Errorf("remote: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return synth.Clip{}, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return synth.Clip{}, fmt.Errorf("remote: synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return synth.Clip{}, fmt.Errorf("remote: synthesize: %s", describeFailure(resp))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
	if err != nil {
		return synth.Clip{}, fmt.Errorf("remote: read clip: %w", err)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/mpeg"
	}
	return synth.Clip{MIME: mime, Data: data}, nil
}

// describeFailure summarises a non-success response, preferring the
// structured error payload when one is present.
func describeFailure(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var ep errorPayload
	if err := json.Unmarshal(raw, &ep); err == nil {
		switch {
		case ep.Error != "":
			return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, ep.Error)
		case ep.Detail != "":
			return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, ep.Detail)
		}
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}
