// Package server exposes the execution engine to clients over HTTP and
// WebSocket. It is a thin gateway: one WebSocket connection is one client,
// and every engine event streams back over that connection.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/engine"
)

// Server is the HTTP front for the execution engine.
type Server struct {
	eng    *engine.Engine
	log    *zap.Logger
	router chi.Router
	http   *http.Server
}

// New creates a Server around an engine.
func New(eng *engine.Engine, log *zap.Logger) *Server {
	s := &Server{
		eng:    eng,
		log:    log,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := "ok"
	if !s.eng.Available() {
		status = "execution unavailable"
	}
	fmt.Fprintf(w, `{"status":%q,"active_jobs":%d}`, status, s.eng.ActiveJobs())
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.log.Info("server listening", zap.String("addr", addr))
	return s.http.ListenAndServe()
}

// Shutdown stops every running job and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	s.eng.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
