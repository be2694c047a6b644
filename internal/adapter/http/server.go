package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/repeater-data-etl/internal/adapter/output"
	"github.com/couchcryptid/repeater-data-etl/internal/domain"
	"github.com/couchcryptid/repeater-data-etl/internal/model"
	"github.com/couchcryptid/repeater-data-etl/internal/pipeline"
)

// SummaryProvider returns the most recent completed run, or nil.
type SummaryProvider interface {
	Last() *pipeline.Summary
}

// Server exposes health, readiness, metrics and the latest grouped output.
type Server struct {
	httpServer *http.Server
	summaries  SummaryProvider
	models     []model.Model
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// the /states routes. models are the configured CSV layouts; registered
// models not in the list are served with their defaults.
func NewServer(addr string, ready sharedobs.ReadinessChecker, summaries SummaryProvider, models []model.Model, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		summaries: summaries,
		models:    models,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /states", s.handleSummary)
	mux.HandleFunc("GET /states/{uf}", s.handleState)
	mux.HandleFunc("GET /states/{uf}/{file}", s.handleStateCSV)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	summary := s.summaries.Last()
	if summary == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no run has completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, records, ok := s.lookupState(w, r)
	if !ok {
		return
	}
	var body bytes.Buffer
	if err := output.EncodeState(&body, state, records); err != nil {
		s.logger.Error("encode state", "state", state, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode failed"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	body.WriteTo(w) //nolint:errcheck // client went away
}

func (s *Server) handleStateCSV(w http.ResponseWriter, r *http.Request) {
	name, found := strings.CutSuffix(strings.ToLower(r.PathValue("file")), ".csv")
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "expected {model}.csv"})
		return
	}
	m, ok := s.model(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown model " + name})
		return
	}
	state, records, ok := s.lookupState(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+state+"."+m.Name+"."+m.Extension+`"`)
	w.WriteHeader(http.StatusOK)
	if err := m.WriteCSV(w, records); err != nil {
		s.logger.Warn("write csv response", "state", state, "model", m.Name, "error", err)
	}
}

// lookupState resolves {uf} against the last summary, writing the error
// response itself when it cannot.
func (s *Server) lookupState(w http.ResponseWriter, r *http.Request) (string, []domain.NormalizedRecord, bool) {
	summary := s.summaries.Last()
	if summary == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no run has completed yet"})
		return "", nil, false
	}
	state := strings.ToLower(r.PathValue("uf"))
	if !domain.IsStateCode(state) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown state " + state})
		return "", nil, false
	}
	return state, summary.Contents[state], true
}

func (s *Server) model(name string) (model.Model, bool) {
	for _, m := range s.models {
		if m.Name == name {
			return m, true
		}
	}
	m, err := model.Lookup(name)
	return m, err == nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
