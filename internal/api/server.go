// Package api exposes the operational HTTP interface for the scheduling
// service: health probes, Prometheus metrics and read-only views of the
// worker registry and target queue, plus a manual cycle trigger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidnkusi/leadscout/internal/leadscout"
	"github.com/davidnkusi/leadscout/internal/metrics"
)

// Cycler triggers one scheduling pass on demand.
type Cycler interface {
	RunCycle(ctx context.Context) error
}

// Server wires HTTP handlers to the stores and the scheduler.
type Server struct {
	router  chi.Router
	workers leadscout.WorkerStore
	targets leadscout.TargetStore
	cycler  Cycler
	idGen   leadscout.IDGenerator
	clock   leadscout.Clock
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	workers leadscout.WorkerStore,
	targets leadscout.TargetStore,
	cycler Cycler,
	idGen leadscout.IDGenerator,
	clock leadscout.Clock,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		workers: workers,
		targets: targets,
		cycler:  cycler,
		idGen:   idGen,
		clock:   clock,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/workers", func(r chi.Router) {
			r.Get("/", s.listWorkers)
			r.Post("/", s.createWorker)
			r.Get("/{worker_id}", s.getWorker)
		})
		r.Route("/targets", func(r chi.Router) {
			r.Get("/", s.listTargets)
			r.Post("/", s.createTarget)
			r.Get("/{target_id}", s.getTarget)
		})
		r.Post("/cycle", s.triggerCycle)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The worker store is the hard dependency: a failed list means the
	// database is unreachable and the scheduler cannot make progress.
	if _, err := s.workers.List(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "worker store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.workers.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list workers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workers": workers})
}

func (s *Server) getWorker(w http.ResponseWriter, r *http.Request) {
	worker, err := s.workers.Get(r.Context(), chi.URLParam(r, "worker_id"))
	if err != nil {
		if errors.Is(err, leadscout.ErrWorkerNotFound) {
			writeError(w, http.StatusNotFound, "worker not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch worker")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"worker": worker})
}

type createWorkerRequest struct {
	Platform       string `json:"platform"`
	CredentialsRef string `json:"credentials_ref"`
}

func (s *Server) createWorker(w http.ResponseWriter, r *http.Request) {
	var req createWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	platform := leadscout.Platform(req.Platform)
	if !leadscout.ValidPlatform(platform) {
		writeError(w, http.StatusBadRequest, "unsupported platform")
		return
	}
	if req.CredentialsRef == "" {
		writeError(w, http.StatusBadRequest, "credentials_ref is required")
		return
	}
	id, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate id")
		return
	}
	worker := leadscout.Worker{
		ID:             id,
		Platform:       platform,
		Status:         leadscout.WorkerIdle,
		CredentialsRef: req.CredentialsRef,
	}
	if err := s.workers.Create(r.Context(), worker); err != nil {
		s.logger.Error("create worker failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create worker")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"worker": worker})
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.targets.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list targets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": targets})
}

func (s *Server) getTarget(w http.ResponseWriter, r *http.Request) {
	target, err := s.targets.Get(r.Context(), chi.URLParam(r, "target_id"))
	if err != nil {
		if errors.Is(err, leadscout.ErrTargetNotFound) {
			writeError(w, http.StatusNotFound, "target not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch target")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"target": target})
}

type createTargetRequest struct {
	UserID   string `json:"user_id"`
	Platform string `json:"platform"`
	Type     string `json:"type"`
	Term     string `json:"term"`
}

func (s *Server) createTarget(w http.ResponseWriter, r *http.Request) {
	var req createTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	platform := leadscout.Platform(req.Platform)
	if !leadscout.ValidPlatform(platform) {
		writeError(w, http.StatusBadRequest, "unsupported platform")
		return
	}
	targetType := leadscout.TargetType(req.Type)
	if !leadscout.ValidTargetType(targetType) {
		writeError(w, http.StatusBadRequest, "unsupported target type")
		return
	}
	if req.Term == "" {
		writeError(w, http.StatusBadRequest, "term is required")
		return
	}
	id, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate id")
		return
	}
	// A fresh target is due immediately: the next cycle picks it up.
	target := leadscout.Target{
		ID:           id,
		UserID:       req.UserID,
		Platform:     platform,
		Type:         targetType,
		Term:         req.Term,
		Status:       leadscout.TargetActive,
		NextScrapeAt: s.clock.Now(),
	}
	if err := s.targets.Create(r.Context(), target); err != nil {
		s.logger.Error("create target failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create target")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"target": target})
}

func (s *Server) triggerCycle(w http.ResponseWriter, r *http.Request) {
	if s.cycler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	if err := s.cycler.RunCycle(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cycle completed"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
