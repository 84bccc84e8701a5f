package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/pkg/log"
)

// Server runs the radar HTTP API
type Server struct {
	Logger log.Logger
	Config *cfg.Config
	server *http.Server
}

// NewServer creates a server for handler on Config.Server.Port
func NewServer(logger log.Logger, config *cfg.Config, handler http.Handler) *Server {
	readTimeout := time.Duration(config.Server.ReadTimeoutSec) * time.Second
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := time.Duration(config.Server.WriteTimeoutSec) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 60 * time.Second
	}

	return &Server{
		Logger: logger,
		Config: config,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Server.Port),
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start blocks serving requests until Stop is called
func (s *Server) Start() error {
	s.Logger.Info(context.Background(), "Starting HTTP server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.Logger.Info(ctx, "Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
