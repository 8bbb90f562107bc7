package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"portalgate/internal/observability/logging"
)

// Server runs the gateway listener and, optionally, the metrics listener
type Server struct {
	httpServer      *http.Server
	metricsServer   *http.Server
	logger          *logging.Logger
	shutdownTimeout time.Duration
}

// Config holds server configuration
type Config struct {
	// Address is the address to listen on
	Address string

	// MetricsAddress is the metrics listener address, empty to disable it
	MetricsAddress string

	// TLS serves HTTPS when set
	TLS *tls.Config

	// ShutdownTimeout is the maximum time to wait for a graceful shutdown
	ShutdownTimeout time.Duration
}

// New creates a new server
func New(config Config, handler http.Handler, metricsHandler http.Handler, logger *logging.Logger) *Server {
	httpServer := &http.Server{
		Addr:              config.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         config.TLS,
	}

	var metricsServer *http.Server
	if config.MetricsAddress != "" && metricsHandler != nil {
		metricsServer = &http.Server{
			Addr:              config.MetricsAddress,
			Handler:           metricsHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return &Server{
		httpServer:      httpServer,
		metricsServer:   metricsServer,
		logger:          logger.WithModule("server"),
		shutdownTimeout: config.ShutdownTimeout,
	}
}

// Handler returns the gateway handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the server is stopped
func (s *Server) Start() error {
	if s.metricsServer != nil {
		go func() {
			s.logger.Info("Starting metrics server", "address", s.metricsServer.Addr)
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("Metrics server failed", logging.Err(err))
			}
		}()
	}

	if s.httpServer.TLSConfig != nil {
		s.logger.Info("Starting HTTPS server", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPS server failed: %w", err)
		}
		return nil
	}

	s.logger.Info("Starting HTTP server", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping servers", "timeout", s.shutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shut down metrics server", logging.Err(err))
		} else {
			s.logger.Info("Metrics server stopped")
		}
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shut down HTTP server", logging.Err(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}
