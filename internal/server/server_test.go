package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/must108/agentnow/internal/orchestrator"
	"github.com/must108/agentnow/internal/recommend"
	speechmock "github.com/must108/agentnow/pkg/speech/mock"
)

// newTestServer builds a Server backed by a scripted recognizer and a stub
// recommendation backend.
func newTestServer(t *testing.T, backend http.Handler) (*Server, *speechmock.Recognizer) {
	t.Helper()

	backendSrv := httptest.NewServer(backend)
	t.Cleanup(backendSrv.Close)

	client, err := recommend.New(backendSrv.URL)
	if err != nil {
		t.Fatalf("recommend.New: %v", err)
	}

	rec := &speechmock.Recognizer{}
	orch := orchestrator.New(rec, client, nil,
		orchestrator.WithStopGrace(0),
		orchestrator.WithRevealInterval(time.Millisecond),
	)
	t.Cleanup(orch.Close)

	return New("127.0.0.1:0", orch, nil, nil), rec
}

func suggestionBackend() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"title":"Seed Fund Match","text":"Here is a great fit.","use_case":"existing_user_request"}`)
	})
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCaptureLifecycleOverHTTP(t *testing.T) {
	srv, rec := newTestServer(t, suggestionBackend())
	h := srv.Handler()

	if res := doRequest(t, h, "POST", "/v1/capture/start", ""); res.Code != http.StatusAccepted {
		t.Fatalf("start status = %d, want %d", res.Code, http.StatusAccepted)
	}

	rec.Last().EmitFinal("find me a funding accelerator")

	if res := doRequest(t, h, "POST", "/v1/capture/stop", ""); res.Code != http.StatusAccepted {
		t.Fatalf("stop status = %d", res.Code)
	}

	// Wait for the asynchronous cycle to complete.
	deadline := time.Now().Add(5 * time.Second)
	var state struct {
		Running    bool `json:"running"`
		Loading    bool `json:"loading"`
		Suggestion *struct {
			Title string `json:"title"`
			Text  string `json:"text"`
		} `json:"suggestion"`
	}
	for {
		res := doRequest(t, h, "GET", "/v1/state", "")
		if res.Code != http.StatusOK {
			t.Fatalf("state status = %d", res.Code)
		}
		if err := json.Unmarshal(res.Body.Bytes(), &state); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if !state.Running && !state.Loading && state.Suggestion != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cycle never completed: %+v", state)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if state.Suggestion.Title != "Seed Fund Match" {
		t.Errorf("suggestion title = %q", state.Suggestion.Title)
	}

	res := doRequest(t, h, "GET", "/v1/history", "")
	if res.Code != http.StatusOK {
		t.Fatalf("history status = %d", res.Code)
	}
	var hist struct {
		Entries []struct {
			Utterance string `json:"utterance"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Entries) != 1 || hist.Entries[0].Utterance != "find me a funding accelerator" {
		t.Errorf("history = %+v", hist.Entries)
	}

	if res := doRequest(t, h, "DELETE", "/v1/history", ""); res.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", res.Code)
	}
	res = doRequest(t, h, "GET", "/v1/history", "")
	if err := json.Unmarshal(res.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Entries) != 0 {
		t.Errorf("history after clear = %+v", hist.Entries)
	}
}

func TestChatEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, suggestionBackend())
	h := srv.Handler()

	res := doRequest(t, h, "POST", "/v1/chat", `{"text":"what fits a biotech startup?"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", res.Code, res.Body.String())
	}

	var sug struct {
		Title   string `json:"title"`
		Text    string `json:"text"`
		UseCase string `json:"use_case"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &sug); err != nil {
		t.Fatalf("decode suggestion: %v", err)
	}
	if sug.Title != "Seed Fund Match" || sug.UseCase != "existing_user_request" {
		t.Errorf("suggestion = %+v", sug)
	}
}

func TestChatEndpoint_Validation(t *testing.T) {
	srv, _ := newTestServer(t, suggestionBackend())
	h := srv.Handler()

	if res := doRequest(t, h, "POST", "/v1/chat", `not json`); res.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", res.Code)
	}
	if res := doRequest(t, h, "POST", "/v1/chat", `{"text":"  "}`); res.Code != http.StatusBadRequest {
		t.Errorf("blank text status = %d, want 400", res.Code)
	}
}

func TestChatEndpoint_BackendFailure(t *testing.T) {
	srv, _ := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	h := srv.Handler()

	res := doRequest(t, h, "POST", "/v1/chat", `{"text":"hello"}`)
	if res.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", res.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error == "" {
		t.Error("error body empty")
	}
}

func TestOperationalEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, suggestionBackend())
	h := srv.Handler()

	if res := doRequest(t, h, "GET", "/healthz", ""); res.Code != http.StatusOK {
		t.Errorf("healthz status = %d", res.Code)
	}
	if res := doRequest(t, h, "GET", "/readyz", ""); res.Code != http.StatusOK {
		t.Errorf("readyz status = %d", res.Code)
	}

	res := doRequest(t, h, "GET", "/metrics", "")
	if res.Code != http.StatusOK {
		t.Errorf("metrics status = %d", res.Code)
	}
	if res.Body.Len() == 0 {
		t.Error("metrics body empty")
	}
}

func TestMethodRouting(t *testing.T) {
	srv, _ := newTestServer(t, suggestionBackend())
	h := srv.Handler()

	// GET on a POST-only route is rejected by the mux method patterns.
	if res := doRequest(t, h, "GET", "/v1/capture/start", ""); res.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", res.Code)
	}
}
