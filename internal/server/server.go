// Package server exposes investigations over HTTP: a small REST API to
// start and fetch investigations, Prometheus metrics, and a WebSocket
// stream of phase transitions for live clients.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dossierlabs/dossier/internal/audit"
	"github.com/dossierlabs/dossier/internal/engine"
	"github.com/dossierlabs/dossier/internal/investigation"
	"github.com/dossierlabs/dossier/internal/report"
	"github.com/dossierlabs/dossier/internal/store"
)

// Config holds serve-mode settings.
type Config struct {
	Host          string
	Port          int
	MaxIterations int
	TrailDir      string
}

// Server runs investigations on request and archives the results.
type Server struct {
	config  Config
	engine  *engine.Engine
	archive store.Store
	hub     *Hub
	log     *zap.Logger

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server around an engine and archive. The engine's
// Progress hook must be wired to the returned server's Broadcast (see
// cmd wiring) for WebSocket streaming to carry events.
func NewServer(cfg Config, eng *engine.Engine, archive store.Store, log *zap.Logger) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:  cfg,
		engine:  eng,
		archive: archive,
		hub:     NewHub(log),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Hub returns the progress broadcast hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start begins serving. Non-blocking; use Stop to shut down.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("http server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop drains connections and shuts down.
func (s *Server) Stop() error {
	s.cancel()
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
	}
	s.wg.Wait()
	return nil
}

func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/investigations", s.handleInvestigations)
	mux.HandleFunc("/api/v1/investigations/", s.handleInvestigationByID)
	mux.HandleFunc("/ws", s.hub.HandleWS)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.archive != nil {
		if err := s.archive.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["archive"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	writeJSON(w, http.StatusOK, status)
}

type startRequest struct {
	Target        string `json:"target"`
	Context       string `json:"context"`
	MaxIterations int    `json:"max_iterations"`
}

type startResponse struct {
	ID     string `json:"id"`
	Target string `json:"target"`
	Status string `json:"status"`
}

func (s *Server) handleInvestigations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.startInvestigation(w, r)
	case http.MethodGet:
		s.listInvestigations(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// startInvestigation kicks off an investigation in the background and
// returns its ID immediately; progress streams over /ws and the result
// lands in the archive.
func (s *Server) startInvestigation(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Target) == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = s.config.MaxIterations
	}

	state := investigation.NewState(req.Target, req.Context, maxIterations)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runInvestigation(state)
	}()

	writeJSON(w, http.StatusAccepted, startResponse{
		ID:     state.ID,
		Target: state.TargetName,
		Status: "started",
	})
}

func (s *Server) runInvestigation(state *investigation.State) {
	var trail *audit.Trail
	if s.config.TrailDir != "" {
		var err error
		if trail, err = audit.NewTrail(s.config.TrailDir, state.TargetName); err != nil {
			s.log.Warn("trail unavailable", zap.Error(err))
		}
	}
	if trail != nil {
		defer trail.Close()
	}

	if err := s.engine.Run(s.ctx, state, trail); err != nil {
		s.log.Error("investigation failed",
			zap.String("id", state.ID),
			zap.Error(err),
		)
	}

	if s.archive != nil {
		rollup := report.Rollup(state.Risks)
		rec := &store.InvestigationRecord{
			ID:              state.ID,
			Target:          state.TargetName,
			Context:         state.TargetContext,
			Phase:           string(state.CurrentPhase),
			Iterations:      state.IterationCount,
			FindingCount:    len(state.Findings),
			RiskCount:       len(state.Risks),
			ConnectionCount: len(state.Connections),
			RiskScore:       rollup.OverallScore,
			RiskLevel:       rollup.Level,
			Report:          state.FinalReport,
			ErrorCount:      len(state.Errors),
			StartedAt:       state.StartedAt,
			CompletedAt:     time.Now(),
		}
		if err := s.archive.SaveInvestigation(s.ctx, rec); err != nil {
			s.log.Error("archive save failed", zap.String("id", state.ID), zap.Error(err))
		}
	}
}

func (s *Server) listInvestigations(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotImplemented, "no archive configured")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := s.archive.ListInvestigations(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []*store.InvestigationRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleInvestigationByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.archive == nil {
		writeError(w, http.StatusNotImplemented, "no archive configured")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/investigations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid investigation id")
		return
	}

	rec, err := s.archive.GetInvestigation(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
