// Package http serves the scoring endpoints.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Server wraps the http.Server together with its middleware chain.
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig holds the listener and request limits of the scoring server.
type ServerConfig struct {
	Host           string
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           7860,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1 << 20,
	}
}

// NewServer registers the endpoints on a fresh mux and wraps it in the middleware chain.
func NewServer(config ServerConfig, handlers *Handlers) *Server {
	mux := http.NewServeMux()
	RegisterHandlers(mux, handlers)

	chain := Chain(
		LoggerMiddleware(handlers.logger, handlers.metrics),
		RecoveryMiddleware(handlers.logger),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		RequestSizeMiddleware(config.MaxBodyBytes),
		DeadlineMiddleware(config.Timeout),
	)

	return &Server{
		server: &http.Server{
			Addr:              net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
			Handler:           chain(mux),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       config.Timeout,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		logger: handlers.logger,
	}
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests for up to five seconds.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler exposes the full middleware chain, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
