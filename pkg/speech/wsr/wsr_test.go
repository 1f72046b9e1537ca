package wsr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/must108/agentnow/pkg/speech"
)

// gatewayStub runs a fake recognition gateway that plays back a scripted
// sequence of messages after accepting the connection.
func gatewayStub(t *testing.T, script func(ctx context.Context, c *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer c.CloseNow()
		script(r.Context(), c)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStartUnavailableOnDialFailure(t *testing.T) {
	t.Parallel()

	r, err := New("ws://127.0.0.1:1/does-not-exist")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := r.Start(ctx, speech.Config{}); err == nil {
		t.Fatal("want dial error, got nil")
	}
}

func TestResultAndEndDelivery(t *testing.T) {
	t.Parallel()

	srv := gatewayStub(t, func(ctx context.Context, c *websocket.Conn) {
		msgs := []string{
			`{"type":"result","segments":[{"text":"hello","final":false}]}`,
			`{"type":"result","segments":[{"text":"hello world","final":true}]}`,
			`{"type":"end"}`,
		}
		for _, m := range msgs {
			if err := c.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
				return
			}
		}
		// Wait for the client to close.
		_, _, _ = c.Read(ctx)
	})

	r, err := New(wsURL(srv))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := r.Start(ctx, speech.Config{InterimResults: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var results []speech.Result
	for res := range sess.Results() {
		results = append(results, res)
	}

	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
	if results[0].Segments[0].Final {
		t.Error("first segment should be interim")
	}
	if got := results[1].Segments[0].Text; got != "hello world" {
		t.Errorf("want %q, got %q", "hello world", got)
	}
	if err := sess.Err(); err != nil {
		t.Errorf("want clean end, got %v", err)
	}
}

func TestBinaryMessagesSurfaceAsChunks(t *testing.T) {
	t.Parallel()

	chunk := []byte{0x1a, 0x45, 0xdf, 0xa3, 0x01, 0x02, 0x03}
	srv := gatewayStub(t, func(ctx context.Context, c *websocket.Conn) {
		_ = c.Write(ctx, websocket.MessageBinary, chunk)
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"end"}`))
		_, _, _ = c.Read(ctx)
	})

	r, err := New(wsURL(srv))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := r.Start(ctx, speech.Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var got [][]byte
	for c := range sess.Chunks() {
		got = append(got, c)
	}
	if len(got) != 1 || string(got[0]) != string(chunk) {
		t.Fatalf("want one chunk %v, got %v", chunk, got)
	}
}

func TestErrorMessageSetsTerminalError(t *testing.T) {
	t.Parallel()

	srv := gatewayStub(t, func(ctx context.Context, c *websocket.Conn) {
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"error","code":"audio-capture","message":"mic busy"}`))
		_, _, _ = c.Read(ctx)
	})

	r, err := New(wsURL(srv))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := r.Start(ctx, speech.Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for range sess.Results() {
	}

	terr := sess.Err()
	if terr == nil {
		t.Fatal("want terminal error, got nil")
	}
	if speech.IsAborted(terr) {
		t.Error("audio-capture must not classify as aborted")
	}
	var se *speech.Error
	if !errors.As(terr, &se) || se.Code != speech.CodeAudioCapture {
		t.Errorf("want code audio-capture, got %v", terr)
	}
}

func TestAbortEndsWithAbortedCode(t *testing.T) {
	t.Parallel()

	srv := gatewayStub(t, func(ctx context.Context, c *websocket.Conn) {
		// Hold the connection open until the client drops it.
		_, _, _ = c.Read(ctx)
	})

	r, err := New(wsURL(srv))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := r.Start(ctx, speech.Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := sess.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	for range sess.Results() {
	}

	if !speech.IsAborted(sess.Err()) {
		t.Fatalf("want aborted, got %v", sess.Err())
	}
}

func TestBuildURLCarriesHints(t *testing.T) {
	t.Parallel()

	r, err := New("wss://gw.example.com/listen", WithToken("tok-1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	u, err := r.buildURL(speech.Config{Language: "en-US", InterimResults: true})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	for _, want := range []string{"language=en-US", "interim_results=true", "token=tok-1"} {
		if !strings.Contains(u, want) {
			t.Errorf("URL %q missing %q", u, want)
		}
	}
}
