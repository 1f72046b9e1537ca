// Package wsr provides a speech.Recognizer backed by a remote recognition
// gateway over WebSocket.
//
// The gateway owns the audio source and the recognition engine; this client
// only consumes its event stream. The wire protocol is JSON text messages of
// the form
//
//	{"type":"result","segments":[{"text":"...","final":true}]}
//	{"type":"error","code":"network","message":"..."}
//	{"type":"end"}
//
// plus binary messages carrying short encoded audio segments, which are
// surfaced on [speech.Session.Chunks] for opportunistic upload. A graceful
// stop is requested with {"type":"stop"}; the gateway flushes any pending
// result before sending the end message.
package wsr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"

	"github.com/must108/agentnow/pkg/speech"
)

const (
	resultChanBuf = 64
	chunkChanBuf  = 64
)

// Option is a functional option for configuring the Recognizer.
type Option func(*Recognizer)

// WithToken sets a bearer token sent as a query parameter on the dial URL.
func WithToken(token string) Option {
	return func(r *Recognizer) { r.token = token }
}

// Recognizer implements speech.Recognizer against a remote gateway.
type Recognizer struct {
	endpoint string
	token    string
}

var _ speech.Recognizer = (*Recognizer)(nil)

// New creates a Recognizer that dials endpoint (a ws:// or wss:// URL).
func New(endpoint string, opts ...Option) (*Recognizer, error) {
	if endpoint == "" {
		return nil, errors.New("wsr: endpoint must not be empty")
	}
	r := &Recognizer{endpoint: endpoint}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Start dials the gateway and begins consuming its event stream. A dial
// failure is reported as the capability being unavailable.
func (r *Recognizer) Start(ctx context.Context, cfg speech.Config) (speech.Session, error) {
	dialURL, err := r.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("wsr: build URL: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, dialURL, nil)
	if err != nil {
		return nil, fmt.Errorf("wsr: dial: %w: %w", speech.ErrUnavailable, err)
	}

	s := &session{
		conn:    conn,
		results: make(chan speech.Result, resultChanBuf),
		chunks:  make(chan []byte, chunkChanBuf),
		done:    make(chan struct{}),
	}
	go s.readLoop(ctx)
	return s, nil
}

// buildURL constructs the dial URL with recognition hints as query parameters.
func (r *Recognizer) buildURL(cfg speech.Config) (string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	if cfg.InterimResults {
		q.Set("interim_results", "true")
	}
	if r.token != "" {
		q.Set("token", r.token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// gatewayMessage is the JSON structure of a text message from the gateway.
type gatewayMessage struct {
	Type     string `json:"type"`
	Segments []struct {
		Text  string `json:"text"`
		Final bool   `json:"final"`
	} `json:"segments"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// session is a live gateway stream. It implements speech.Session.
type session struct {
	conn    *websocket.Conn
	results chan speech.Result
	chunks  chan []byte

	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	err     error
	aborted bool
}

func (s *session) Results() <-chan speech.Result { return s.results }

func (s *session) Chunks() <-chan []byte { return s.chunks }

// Stop asks the gateway to flush and end the stream. Termination is
// signalled by the gateway's end message, not by Stop itself.
func (s *session) Stop() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	err := s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"stop"}`))
	if err != nil {
		return fmt.Errorf("wsr: stop: %w", err)
	}
	return nil
}

// Abort drops the connection immediately. The session ends with an aborted
// error unless it already terminated.
func (s *session) Abort() error {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()
	s.conn.Close(websocket.StatusNormalClosure, "aborted")
	return nil
}

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// readLoop consumes gateway messages until the stream ends, then closes the
// result and chunk channels exactly once.
func (s *session) readLoop(ctx context.Context) {
	defer s.finish()

	for {
		typ, msg, err := s.conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			if s.aborted {
				s.err = &speech.Error{Code: speech.CodeAborted}
			} else if s.err == nil {
				s.err = &speech.Error{Code: speech.CodeNetwork, Message: err.Error()}
			}
			s.mu.Unlock()
			return
		}

		if typ == websocket.MessageBinary {
			chunk := make([]byte, len(msg))
			copy(chunk, msg)
			select {
			case s.chunks <- chunk:
			default:
				// Slow consumer: drop the segment rather than stall recognition.
			}
			continue
		}

		var gm gatewayMessage
		if err := json.Unmarshal(msg, &gm); err != nil {
			continue
		}

		switch gm.Type {
		case "result":
			res := speech.Result{Segments: make([]speech.Segment, 0, len(gm.Segments))}
			for _, seg := range gm.Segments {
				res.Segments = append(res.Segments, speech.Segment{Text: seg.Text, Final: seg.Final})
			}
			select {
			case s.results <- res:
			case <-ctx.Done():
				return
			}
		case "error":
			s.mu.Lock()
			s.err = &speech.Error{Code: speech.ErrorCode(gm.Code), Message: gm.Message}
			s.mu.Unlock()
			if speech.ErrorCode(gm.Code) != speech.CodeAborted {
				return
			}
			// An aborted error is followed by the end message; keep reading.
		case "end":
			return
		}
	}
}

func (s *session) finish() {
	s.once.Do(func() {
		close(s.done)
		close(s.results)
		close(s.chunks)
		s.conn.Close(websocket.StatusNormalClosure, "session ended")
	})
}
