package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	rateLimitCleanupEvery  = 10 * time.Minute
	rateLimitIdleAfter     = 24 * time.Hour
)

// Handler returns the configured route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// ListenAndServe listens on config.Host:config.Port and serves until ctx is
// canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, config Config) error {
	addr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, config)
}

// Serve accepts connections on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener, config Config) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if config.TimeoutSec > 0 {
		timeout := time.Duration(config.TimeoutSec) * time.Second
		httpServer.ReadTimeout = timeout
		httpServer.WriteTimeout = timeout
	}

	if s.rateLimiter != nil {
		go s.cleanupRateLimiter(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting shape detection server", "addr", ln.Addr().String())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownTimeout := defaultShutdownTimeout
	if config.ShutdownTimeoutSec > 0 {
		shutdownTimeout = time.Duration(config.ShutdownTimeoutSec) * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	slog.Info("HTTP server shutdown completed")
	return nil
}

func (s *Server) cleanupRateLimiter(ctx context.Context) {
	ticker := time.NewTicker(rateLimitCleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.rateLimiter.Cleanup(rateLimitIdleAfter); n > 0 {
				slog.Debug("Removed idle rate limit entries", "count", n)
			}
		}
	}
}
