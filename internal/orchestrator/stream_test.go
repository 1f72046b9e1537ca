package orchestrator

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/must108/agentnow/internal/recommend"
	speechmock "github.com/must108/agentnow/pkg/speech/mock"
)

func TestStreaming_ChunkUploadFinalizes(t *testing.T) {
	t.Parallel()

	client := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transcribe_chunk":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"finalized":true,"utterance":"book a meeting room","suggestion":{"title":"Room Finder","text":"Room 4 is free.","use_case":"existing_user_request"}}`)
		case "/live_state":
			io.WriteString(w, `{}`)
		default:
			http.NotFound(w, r)
		}
	}),
		recommend.WithMinChunkBytes(4),
		recommend.WithPollInterval(time.Hour),
	)

	rec := &speechmock.Recognizer{}
	listener := &recordingListener{}
	o := New(rec, client, nil,
		WithStreaming(true),
		WithStopGrace(0),
		WithRevealInterval(time.Millisecond),
		WithListener(listener),
	)
	defer o.Close()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec.Last().EmitChunk([]byte("audio-segment"))

	waitFor(t, func() bool { return o.Snapshot().Latest != nil }, "live suggestion")

	st := o.Snapshot()
	if st.LastUtterance != "book a meeting room" {
		t.Errorf("last utterance = %q", st.LastUtterance)
	}
	if st.Latest.Title != "Room Finder" || st.Latest.Text != "Room 4 is free." {
		t.Errorf("latest = %+v", st.Latest)
	}

	waitFor(t, func() bool { return len(o.History()) == 1 }, "history entry")
	entry := o.History()[0]
	if entry.Utterance != "book a meeting room" || entry.Title != "Room Finder" {
		t.Errorf("history entry = %+v", entry)
	}

	listener.mu.Lock()
	utts := append([]string(nil), listener.utterances...)
	listener.mu.Unlock()
	if len(utts) != 1 || utts[0] != "book a meeting room" {
		t.Errorf("listener utterances = %v", utts)
	}
}

func TestStreaming_ShortChunksAreSkipped(t *testing.T) {
	t.Parallel()

	uploads := make(chan struct{}, 16)
	client := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/transcribe_chunk" {
			uploads <- struct{}{}
		}
		io.WriteString(w, `{}`)
	}),
		recommend.WithMinChunkBytes(1024),
		recommend.WithPollInterval(time.Hour),
	)

	rec := &speechmock.Recognizer{}
	o := New(rec, client, nil, WithStreaming(true), WithStopGrace(0))
	defer o.Close()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec.Last().EmitChunk([]byte("tiny"))

	select {
	case <-uploads:
		t.Fatal("short segment was uploaded")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStreaming_PollAppliesAndDedupes(t *testing.T) {
	t.Parallel()

	client := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/live_state" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"utterance":"weather tomorrow","suggestion":{"text":"Sunny all day.","use_case":"not_relevant"}}`)
	}),
		recommend.WithPollInterval(5*time.Millisecond),
	)

	rec := &speechmock.Recognizer{}
	listener := &recordingListener{}
	o := New(rec, client, nil,
		WithStreaming(true),
		WithStopGrace(0),
		WithRevealInterval(time.Millisecond),
		WithListener(listener),
	)
	defer o.Close()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return o.Snapshot().Latest != nil }, "poll suggestion")

	st := o.Snapshot()
	if st.LastUtterance != "weather tomorrow" {
		t.Errorf("last utterance = %q", st.LastUtterance)
	}
	if st.Latest.Text != "Sunny all day." {
		t.Errorf("latest = %+v", st.Latest)
	}

	// Identical consecutive poll responses are deduplicated: several more
	// poll rounds must not retrigger the suggestion update.
	time.Sleep(60 * time.Millisecond)

	listener.mu.Lock()
	n := len(listener.suggestions)
	listener.mu.Unlock()
	if n != 1 {
		t.Errorf("suggestion updates = %d, want 1 after dedupe", n)
	}

	// A poll-only update is not finalized and must not touch history.
	if len(o.History()) != 0 {
		t.Errorf("history = %+v, want empty for non-finalized updates", o.History())
	}
}

func TestStreaming_StopsWithSession(t *testing.T) {
	t.Parallel()

	polls := make(chan struct{}, 64)
	client := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/live_state" {
			select {
			case polls <- struct{}{}:
			default:
			}
		}
		io.WriteString(w, `{}`)
	}),
		recommend.WithPollInterval(5*time.Millisecond),
	)

	rec := &speechmock.Recognizer{}
	o := New(rec, client, nil, WithStreaming(true), WithStopGrace(0))
	defer o.Close()

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool {
		select {
		case <-polls:
			return true
		default:
			return false
		}
	}, "first poll")

	o.Stop()
	waitFor(t, func() bool { return !o.Snapshot().Running }, "session end")

	// Drain anything already in flight, then confirm polling has stopped.
	time.Sleep(20 * time.Millisecond)
	for len(polls) > 0 {
		<-polls
	}
	time.Sleep(50 * time.Millisecond)
	if len(polls) != 0 {
		t.Error("poll loop kept running after the session ended")
	}
}
