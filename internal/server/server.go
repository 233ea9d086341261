package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelrank/reelrank/internal/config"
)

const shutdownTimeout = 30 * time.Second

// ShutdownHook runs after the HTTP server has stopped accepting requests.
type ShutdownHook func(ctx context.Context) error

type Server struct {
	httpServer *http.Server
	hooks      []ShutdownHook
}

func New(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// OnShutdown registers hooks, run in registration order.
func (s *Server) OnShutdown(hooks ...ShutdownHook) {
	s.hooks = append(s.hooks, hooks...)
}

// Start serves until SIGINT/SIGTERM or ctx is cancelled, then shuts down
// gracefully and runs the shutdown hooks.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)

	go func() {
		slog.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	for _, hook := range s.hooks {
		if err := hook(shutdownCtx); err != nil {
			slog.Warn("shutdown hook failed", "error", err)
		}
	}

	slog.Info("server stopped gracefully")
	return nil
}
