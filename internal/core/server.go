// Package core provides the HTTP chassis of the long-running reminder
// worker: a chi router serving the health and status endpoints.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StatusReporter exposes the state of the most recent dispatch run.
type StatusReporter interface {
	// LastRun returns a JSON-serializable snapshot, or ok=false before the
	// first run.
	LastRun() (snapshot any, ok bool)
}

// Server holds the dependencies of the worker's HTTP endpoints.
type Server struct {
	Logger       *slog.Logger
	HealthProbes []HealthProbe
	Status       StatusReporter // optional

	router *chi.Mux
}

// NewServer builds the router and mounts GET /health and GET /status.
func NewServer(logger *slog.Logger, probes ...HealthProbe) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	s := &Server{
		Logger:       logger,
		HealthProbes: probes,
		router:       chi.NewRouter(),
	}

	s.router.Use(s.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(RequestLogger(logger))

	s.router.Get("/health", s.HandleHealth)
	s.router.Get("/status", s.HandleStatus)
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down with
// a grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("health server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("health server shutdown: %w", err)
	}
	s.Logger.Info("health server stopped")
	return nil
}

// HandleStatus writes the last run snapshot, or 204 before the first run.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if s.Status == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	snap, ok := s.Status.LastRun()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	JSON(w, r, http.StatusOK, snap)
}
