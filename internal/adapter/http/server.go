// Package http exposes the service's HTTP surface: health, readiness,
// metrics, and the paginated sites snapshot.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ozalerts/exposure-sites-etl/internal/domain"
	"github.com/ozalerts/exposure-sites-etl/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultLimit = 50

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// SnapshotReader serves windows of the published snapshot for one feed.
type SnapshotReader interface {
	Read(ctx context.Context, feed string, offset, limit int) (pipeline.Snapshot, error)
}

// Server exposes health, readiness, metrics, and snapshot-read endpoints.
type Server struct {
	httpServer *http.Server
	reader     SnapshotReader
	states     map[string]bool
	logger     *slog.Logger
}

// NewServer creates the HTTP server. states lists the feed states /v1/sites
// will accept; anything else is a 400.
func NewServer(addr string, ready ReadinessChecker, reader SnapshotReader, states []string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	known := make(map[string]bool, len(states))
	for _, s := range states {
		known[s] = true
	}

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		reader: reader,
		states: known,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.HandleFunc("GET /v1/sites", s.handleSites)
	mux.Handle("GET /metrics", promhttp.Handler())

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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleSites serves GET /v1/sites?state=vic&offset=0&limit=50.
func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	state := q.Get("state")
	if !s.states[state] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown state"})
		return
	}

	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "offset must be an integer"})
		return
	}
	limit, err := queryInt(q.Get("limit"), defaultLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
		return
	}

	snap, err := s.reader.Read(r.Context(), state, offset, limit)
	if err != nil {
		if errors.Is(err, domain.ErrNeverPublished) {
			s.logger.Warn("snapshot requested before first publish", "state", state)
		} else {
			s.logger.Error("snapshot read failed", "state", state, "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "snapshot unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
