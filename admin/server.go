// Package admin serves an HTTP view of the refresh coordinator: pending
// modules, refresh history, manual refresh requests, cycle triggers and
// Prometheus metrics.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/GoCodeAlone/modrefresh"
	"github.com/GoCodeAlone/modrefresh/engine"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wires the admin routes to a coordinator and its engine.
type Server struct {
	coordinator *modrefresh.Coordinator
	engine      *engine.Engine
	gatherer    prometheus.Gatherer
	logger      modrefresh.Logger

	mu         sync.Mutex
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger modrefresh.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// New creates an admin server.
func New(c *modrefresh.Coordinator, e *engine.Engine, opts ...Option) *Server {
	s := &Server{
		coordinator: c,
		engine:      e,
		gatherer:    prometheus.DefaultGatherer,
		logger:      modrefresh.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the admin routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/refresh", func(r chi.Router) {
		r.Get("/pending", s.handlePending)
		r.Get("/history", s.handleHistory)
		r.Post("/modules/{id}", s.handleMark)
	})
	r.Post("/cycles", s.handleRunCycle)
	r.Get("/observers", s.handleObservers)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

// ListenAndServe serves the admin routes on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("Admin server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type pendingResponse struct {
	Pending []modrefresh.ModuleID `json:"pending"`
	Queued  int                   `json:"queued"`
}

func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, pendingResponse{
		Pending: s.coordinator.Pending().Snapshot(),
		Queued:  s.engine.Queued(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.History())
}

func (s *Server) handleObservers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.GetObservers())
}

func (s *Server) handleMark(w http.ResponseWriter, r *http.Request) {
	id, err := modrefresh.ParseModuleID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid module id")
		return
	}
	s.coordinator.MarkIDForRefresh(s.engine.Context(), id)
	s.logger.Info("Refresh requested over admin API", "module", id)
	writeJSON(w, http.StatusAccepted, map[string]any{"module": id, "queued": true})
}

// handleRunCycle runs the cycle to its end even if the client goes away, so
// refresh waits are bounded only by their own deadline.
func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.RunCycle(context.WithoutCancel(r.Context()))
	if errors.Is(err, engine.ErrEngineStopped) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	resp := map[string]any{"report": report}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
