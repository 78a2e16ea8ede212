// Package server owns the HTTP listener lifecycle and the ordered
// shutdown of background components.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// StopFunc stops one component, honoring the drain deadline in ctx.
type StopFunc func(ctx context.Context) error

type hook struct {
	name string
	stop StopFunc
}

// Server wraps http.Server with signal handling and a coordinated drain.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
	mu              sync.Mutex
	hooks           []hook
}

// New creates a new Server instance.
func New(handler http.Handler, port int, readTimeout, writeTimeout, shutdownTimeout time.Duration, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// OnShutdown registers a component to stop during the drain. Components
// stop in reverse registration order, after the HTTP server has stopped
// accepting requests: register producers before their consumers so work
// stops flowing before the sinks close.
func (s *Server) OnShutdown(name string, stop StopFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook{name: name, stop: stop})
}

// Run starts the server and blocks until a shutdown signal arrives or
// the listener fails. On SIGINT/SIGTERM it drains within the shutdown
// timeout; a second signal abandons the drain.
func (s *Server) Run() error {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	// Impatient operators get a fast exit. The process ends right after
	// drain returns, so the watcher goroutine is allowed to leak.
	go func() {
		sig := <-shutdown
		s.logger.Warn("second signal, abandoning drain", "signal", sig.String())
		cancel()
	}()

	return s.drain(ctx)
}

// drain stops the HTTP server, then every registered component in
// reverse order. Hook failures do not stop the drain; they are joined
// into the returned error.
func (s *Server) drain(ctx context.Context) error {
	s.logger.Info("stopping HTTP server", "timeout", s.shutdownTimeout)
	s.httpServer.SetKeepAlivesEnabled(false)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
	s.logger.Info("HTTP server stopped")

	s.mu.Lock()
	hooks := make([]hook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		s.logger.Info("stopping component", "name", h.name)
		if err := h.stop(ctx); err != nil {
			s.logger.Error("component shutdown error", "name", h.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		s.logger.Info("component stopped", "name", h.name)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
