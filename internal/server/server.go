// Package server exposes the orchestrator's control surface over HTTP: the
// start/stop capture commands, the state snapshot, the history ledger, and
// typed chat queries, plus the operational endpoints (health probes and
// Prometheus metrics).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/must108/agentnow/internal/health"
	"github.com/must108/agentnow/internal/history"
	"github.com/must108/agentnow/internal/observe"
	"github.com/must108/agentnow/internal/orchestrator"
	"github.com/must108/agentnow/internal/suggestion"
)

// shutdownTimeout bounds the drain of in-flight requests on shutdown.
const shutdownTimeout = 10 * time.Second

// Server serves the orchestrator control API.
type Server struct {
	orch    *orchestrator.Orchestrator
	health  *health.Handler
	metrics *observe.Metrics
	httpSrv *http.Server
}

// New creates a Server listening on addr. healthHandler may be nil when no
// readiness checks are wired up.
func New(addr string, orch *orchestrator.Orchestrator, healthHandler *health.Handler, metrics *observe.Metrics) *Server {
	if healthHandler == nil {
		healthHandler = health.New()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	s := &Server{
		orch:    orch,
		health:  healthHandler,
		metrics: metrics,
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler builds the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/capture/start", s.handleStart)
	mux.HandleFunc("POST /v1/capture/stop", s.handleStop)
	mux.HandleFunc("GET /v1/state", s.handleState)
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("DELETE /v1/history", s.handleClearHistory)
	mux.HandleFunc("POST /v1/chat", s.handleChat)

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// Run serves until ctx is cancelled, then drains gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()

	slog.Info("control API listening", "addr", s.httpSrv.Addr)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// ── Handlers ──────────────────────────────────────────────────────────────────

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Start(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, statusBody{Status: "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.orch.Stop()
	writeJSON(w, http.StatusAccepted, statusBody{Status: "stopping"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newStateBody(s.orch.Snapshot()))
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	entries := s.orch.History()
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, historyBody{Entries: entries})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, _ *http.Request) {
	s.orch.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}

	sug, err := s.orch.Ask(r.Context(), req.Text)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, suggestionBody(sug))
}

// ── Wire types ────────────────────────────────────────────────────────────────

type statusBody struct {
	Status string `json:"status"`
}

type errorBody struct {
	Error string `json:"error"`
}

type chatRequest struct {
	Text string `json:"text"`
}

type historyBody struct {
	Entries []history.Entry `json:"entries"`
}

type revealBody struct {
	Source   string `json:"source"`
	Revealed string `json:"revealed"`
	Active   bool   `json:"active"`
}

type stateBody struct {
	Running       bool            `json:"running"`
	Loading       bool            `json:"loading"`
	LastError     string          `json:"last_error,omitempty"`
	LastUtterance string          `json:"last_utterance,omitempty"`
	DisplayText   string          `json:"display_text,omitempty"`
	Suggestion    *suggestionWire `json:"suggestion,omitempty"`
	Reveal        revealBody      `json:"reveal"`
}

type suggestionWire struct {
	Title   string `json:"title"`
	Text    string `json:"text"`
	UseCase string `json:"use_case"`
}

func suggestionBody(sug suggestion.Suggestion) suggestionWire {
	return suggestionWire{
		Title:   sug.Title,
		Text:    sug.Text,
		UseCase: string(sug.UseCase),
	}
}

func newStateBody(st orchestrator.State) stateBody {
	body := stateBody{
		Running:       st.Running,
		Loading:       st.Loading,
		LastError:     st.LastError,
		LastUtterance: st.LastUtterance,
		DisplayText:   st.DisplayText,
		Reveal: revealBody{
			Source:   st.Reveal.Source,
			Revealed: st.Reveal.Revealed,
			Active:   st.Reveal.Active,
		},
	}
	if st.Latest != nil {
		wire := suggestionBody(*st.Latest)
		body.Suggestion = &wire
	}
	return body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
