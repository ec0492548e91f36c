// Package api serves the orsa admin HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/orsa-go/orsa/config"
	"github.com/orsa-go/orsa/pkg/logger"
)

// Server is the lifecycle of the admin API.
type Server interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// HTTPServer serves the router built by NewRouter.
type HTTPServer struct {
	server *http.Server
	logger logger.Logger
}

var _ Server = (*HTTPServer)(nil)

// NewHTTPServer creates the admin API server from cfg.Server.
func NewHTTPServer(cfg *config.Config, log logger.Logger, h *Handlers) *HTTPServer {
	log = log.With("component", "api")
	httpCfg := cfg.Server.HTTP
	return &HTTPServer{
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:           NewRouter(cfg, log, h),
			ReadTimeout:       httpCfg.ReadTimeout,
			ReadHeaderTimeout: httpCfg.ReadTimeout,
			WriteTimeout:      httpCfg.WriteTimeout,
			IdleTimeout:       httpCfg.IdleTimeout,
			MaxHeaderBytes:    httpCfg.MaxHeaderBytes,
		},
		logger: log,
	}
}

// Addr returns the listen address.
func (s *HTTPServer) Addr() string { return s.server.Addr }

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler { return s.server.Handler }

// Start listens and blocks until the server is shut down.
func (s *HTTPServer) Start() error {
	s.logger.Info("admin api listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin api: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin api shutdown: %w", err)
	}
	s.logger.Info("admin api stopped")
	return nil
}
