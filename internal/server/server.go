// Package server exposes the service's liveness endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/florianilch/dropbox-token-relay/internal/observability/middleware"
)

// StatusText is the liveness response body.
const StatusText = "✅ Dropbox Token Refresh Service Running..."

// Option configures a Server.
type Option func(*config)

type config struct {
	metricsPath    string
	metricsHandler http.Handler
	logger         *slog.Logger
}

// WithMetrics serves handler at path alongside the liveness route.
func WithMetrics(path string, handler http.Handler) Option {
	return func(c *config) {
		c.metricsPath = path
		c.metricsHandler = handler
	}
}

// WithLogger sets the request logger (defaults to slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Server is the HTTP server for liveness checks. Its answer does not depend on
// how the last refresh went.
type Server struct {
	handler http.Handler
	server  *http.Server
	addr    net.Addr
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates a Server.
func New(opts ...Option) (*Server, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(StatusText))
	})

	if cfg.metricsHandler != nil {
		if cfg.metricsPath == "" || cfg.metricsPath == "/" {
			return nil, fmt.Errorf("invalid metrics path %q", cfg.metricsPath)
		}
		mux.Handle("GET "+cfg.metricsPath, cfg.metricsHandler)
	}

	return &Server{
		handler: middleware.Chain(mux,
			middleware.Logging(cfg.logger, "/"),
			middleware.Recovery(cfg.logger),
		),
	}, nil
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start listens on address and serves in the background.
//
// Listen errors (port in use, permission denied) are returned immediately.
// Errors while serving are sent to the returned channel, which is closed when
// the server stops. Call Shutdown to stop it.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.addr = listener.Addr()

	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Addr returns the listening address once Start succeeded.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Shutdown stops the server gracefully, closing it forcibly if ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
