// Package recommend implements the HTTP client for the recommendation
// backend.
//
// The backend exposes two interaction styles. In single-shot mode a finalized
// utterance is sent once through [Client.Query]. In streaming mode short audio
// segments are pushed through [Client.UploadChunk] while [Client.LiveState]
// is polled for server-side transcription progress. All responses pass
// through package suggestion so that display text is sanitized before anyone
// sees it.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/must108/agentnow/internal/observe"
	"github.com/must108/agentnow/internal/resilience"
	"github.com/must108/agentnow/internal/suggestion"
)

// DefaultMinChunkBytes is the smallest audio segment worth uploading.
// Anything shorter carries too little speech to transcribe.
const DefaultMinChunkBytes = 8 * 1024

// DefaultPollInterval is the cadence for [Client.LiveState] polling while a
// streaming session is active.
const DefaultPollInterval = 1500 * time.Millisecond

// maxResponseBytes bounds backend response bodies.
const maxResponseBytes = 1 << 20

// Mode selects how the backend interprets a query.
type Mode string

const (
	// ModeChat marks a typed request.
	ModeChat Mode = "chat"

	// ModeVoice marks a request produced from a finalized spoken utterance.
	ModeVoice Mode = "voice"
)

// ChunkAck is the backend's response to an audio chunk upload. Suggestion is
// non-nil only when the backend attached one to this ack.
type ChunkAck struct {
	Finalized  bool
	Utterance  string
	Suggestion *suggestion.Suggestion
}

// LiveUpdate is the backend's streaming transcription state at poll time.
type LiveUpdate struct {
	Utterance  string
	Suggestion *suggestion.Suggestion
}

// Client talks to the recommendation backend. Safe for concurrent use.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	metrics       *observe.Metrics
	breaker       *resilience.Breaker
	minChunkBytes int
	pollInterval  time.Duration
}

// Option customises a [Client].
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Useful for tests and
// for callers that need custom transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout on the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMetrics sets the metrics instance used for instrumentation. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBreaker guards all backend calls with the given circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithMinChunkBytes overrides the minimum uploadable segment size.
func WithMinChunkBytes(n int) Option {
	return func(c *Client) { c.minChunkBytes = n }
}

// WithPollInterval overrides the live-state polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("recommend: base URL must not be empty")
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		minChunkBytes: DefaultMinChunkBytes,
		pollInterval:  DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// MinChunkBytes returns the configured minimum uploadable segment size.
func (c *Client) MinChunkBytes() int { return c.minChunkBytes }

// PollInterval returns the configured live-state polling cadence.
func (c *Client) PollInterval() time.Duration { return c.pollInterval }

// Query sends a finalized utterance and returns the backend's suggestion.
// A JSON response is decoded into the structured suggestion fields; any other
// content type (or undecodable JSON) is treated as raw display text.
func (c *Client) Query(ctx context.Context, utterance string, mode Mode) (suggestion.Suggestion, error) {
	ctx, span := observe.StartSpan(ctx, "recommend.Query")
	defer span.End()

	q := url.Values{}
	q.Set("payload", utterance)
	q.Set("mode", string(mode))

	start := time.Now()
	body, contentType, err := c.get(ctx, "/query?"+q.Encode())
	c.metrics.QueryDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordBackendRequest(ctx, "query", "error")
		c.metrics.RecordBackendError(ctx, "query")
		return suggestion.Suggestion{}, fmt.Errorf("recommend: query: %w", err)
	}
	c.metrics.RecordBackendRequest(ctx, "query", "ok")

	if isJSON(contentType) {
		if sug, err := suggestion.FromJSON(body); err == nil {
			return sug, nil
		}
	}
	return suggestion.FromText(string(body)), nil
}

// UploadChunk pushes one audio segment to the backend. Segments below the
// minimum size are skipped and return (nil, nil); the caller should keep
// buffering. A non-nil ack may carry a finalized utterance and a suggestion.
func (c *Client) UploadChunk(ctx context.Context, segment []byte) (*ChunkAck, error) {
	if len(segment) < c.minChunkBytes {
		return nil, nil
	}

	ctx, span := observe.StartSpan(ctx, "recommend.UploadChunk")
	defer span.End()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "segment.webm")
	if err != nil {
		return nil, fmt.Errorf("recommend: upload chunk: %w", err)
	}
	if _, err := part.Write(segment); err != nil {
		return nil, fmt.Errorf("recommend: upload chunk: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("recommend: upload chunk: %w", err)
	}

	start := time.Now()
	body, _, err := c.post(ctx, "/transcribe_chunk", mw.FormDataContentType(), &buf)
	c.metrics.ChunkUploadDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordBackendRequest(ctx, "transcribe_chunk", "error")
		c.metrics.RecordBackendError(ctx, "transcribe_chunk")
		return nil, fmt.Errorf("recommend: upload chunk: %w", err)
	}
	c.metrics.RecordBackendRequest(ctx, "transcribe_chunk", "ok")

	ack, err := decodeChunkAck(body)
	if err != nil {
		return nil, fmt.Errorf("recommend: upload chunk: %w", err)
	}
	return ack, nil
}

// LiveState fetches the backend's current streaming transcription state.
// Returns (nil, nil) when the backend has nothing new to report.
func (c *Client) LiveState(ctx context.Context) (*LiveUpdate, error) {
	ctx, span := observe.StartSpan(ctx, "recommend.LiveState")
	defer span.End()

	body, _, err := c.get(ctx, "/live_state")
	if err != nil {
		c.metrics.RecordBackendRequest(ctx, "live_state", "error")
		c.metrics.RecordBackendError(ctx, "live_state")
		return nil, fmt.Errorf("recommend: live state: %w", err)
	}
	c.metrics.RecordBackendRequest(ctx, "live_state", "ok")

	upd, err := decodeLiveUpdate(body)
	if err != nil {
		return nil, fmt.Errorf("recommend: live state: %w", err)
	}
	return upd, nil
}

// Ping probes the backend's hello endpoint. Used by the readiness check.
func (c *Client) Ping(ctx context.Context) error {
	if _, _, err := c.get(ctx, "/hello"); err != nil {
		return fmt.Errorf("recommend: ping: %w", err)
	}
	return nil
}

// get performs a GET against path, routed through the breaker when one is
// configured, and returns the response body and content type.
func (c *Client) get(ctx context.Context, path string) (body []byte, contentType string, err error) {
	err = c.execute(func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if reqErr != nil {
			return reqErr
		}
		body, contentType, err = c.roundTrip(req)
		return err
	})
	return body, contentType, err
}

// post performs a POST against path with the given payload.
func (c *Client) post(ctx context.Context, path, contentType string, payload io.Reader) (body []byte, respType string, err error) {
	err = c.execute(func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", contentType)
		body, respType, err = c.roundTrip(req)
		return err
	})
	return body, respType, err
}

// execute runs fn through the breaker when one is configured.
func (c *Client) execute(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Do(fn)
}

// roundTrip sends req and returns the response body and content type.
// Non-2xx statuses become errors.
func (c *Client) roundTrip(req *http.Request) ([]byte, string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// decodeChunkAck parses a transcribe_chunk response. Empty bodies are valid
// and mean the backend has nothing to report yet.
func decodeChunkAck(body []byte) (*ChunkAck, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var raw struct {
		Finalized  bool            `json:"finalized"`
		Utterance  string          `json:"utterance"`
		Suggestion json.RawMessage `json:"suggestion"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode ack: %w", err)
	}
	ack := &ChunkAck{
		Finalized: raw.Finalized,
		Utterance: strings.TrimSpace(raw.Utterance),
	}
	if sug, ok := decodeNestedSuggestion(raw.Suggestion); ok {
		ack.Suggestion = sug
	}
	return ack, nil
}

// decodeLiveUpdate parses a live_state response. Empty bodies and empty JSON
// objects both mean no update.
func decodeLiveUpdate(body []byte) (*LiveUpdate, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var raw struct {
		Utterance  string          `json:"utterance"`
		Suggestion json.RawMessage `json:"suggestion"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	upd := &LiveUpdate{Utterance: strings.TrimSpace(raw.Utterance)}
	if sug, ok := decodeNestedSuggestion(raw.Suggestion); ok {
		upd.Suggestion = sug
	}
	if upd.Utterance == "" && upd.Suggestion == nil {
		return nil, nil
	}
	return upd, nil
}

// decodeNestedSuggestion parses an optional embedded suggestion object.
func decodeNestedSuggestion(raw json.RawMessage) (*suggestion.Suggestion, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	sug, err := suggestion.FromJSON(raw)
	if err != nil {
		return nil, false
	}
	return &sug, true
}

// isJSON reports whether contentType denotes a JSON media type.
func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
