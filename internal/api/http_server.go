package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPServer runs one listener for an agent, the engine or the metrics scrape.
type HTTPServer struct {
	name     string
	server   *http.Server
	listener net.Listener
}

// HTTPOption customises an HTTPServer.
type HTTPOption func(*http.Server)

// WithWriteTimeout replaces the default 30s response deadline. Zero disables it.
func WithWriteTimeout(d time.Duration) HTTPOption {
	return func(s *http.Server) { s.WriteTimeout = d }
}

// NewHTTPServer binds addr immediately so port conflicts surface at startup.
func NewHTTPServer(name, addr string, handler http.Handler, opts ...HTTPOption) (*HTTPServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s: listen on %s: %w", name, addr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return &HTTPServer{name: name, listener: lis, server: srv}, nil
}

// Name identifies the server to the supervisor.
func (s *HTTPServer) Name() string { return s.name }

// Start serves until Shutdown is invoked.
func (s *HTTPServer) Start() error {
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", s.name, err)
	}
	return nil
}

// Address exposes the bound listener address.
func (s *HTTPServer) Address() string {
	return s.listener.Addr().String()
}
