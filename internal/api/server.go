// Package api exposes a small read-only status surface for dashboards
// and health probes.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bughra383/simulakra/internal/campaign"
	"github.com/bughra383/simulakra/internal/config"
	"github.com/bughra383/simulakra/internal/pkg/logger"
	"github.com/bughra383/simulakra/internal/repository/postgres"
)

// RunLister returns recent run history.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]postgres.Run, error)
}

// Server serves the status API.
type Server struct {
	status *campaign.Status
	runs   RunLister
	log    *logger.Logger
	http   *http.Server
}

// New creates a status server. runs may be nil when no run-history
// database is configured.
func New(cfg config.ServerConfig, status *campaign.Status, runs RunLister, log *logger.Logger) *Server {
	s := &Server{
		status: status,
		runs:   runs,
		log:    log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/runs", s.handleRuns)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router. Used in tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("status API listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, []postgres.Run{})
		return
	}

	runs, err := s.runs.ListRecent(r.Context(), 20)
	if err != nil {
		s.log.Error("listing run history", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "run history unavailable"})
		return
	}
	if runs == nil {
		runs = []postgres.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
