package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ytmp3/ytmp3/internal/catalog"
	"github.com/ytmp3/ytmp3/internal/convert"
	"github.com/ytmp3/ytmp3/internal/deps"
	"github.com/ytmp3/ytmp3/internal/fileserver"
	"github.com/ytmp3/ytmp3/internal/metrics"
)

// DependencyChecker verifies the external tools before each conversion.
type DependencyChecker interface {
	Check() error
	Report() []deps.Status
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// ServerConfig wires the router. Converter, Checker and Downloads are
// required; the rest fall back to defaults.
type ServerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	MaxBodyBytes      int64

	Converter convert.Converter
	Checker   DependencyChecker
	History   catalog.History
	Metrics   *metrics.Metrics
	Downloads fileserver.DownloadService
	Static    http.Handler
	Logger    *slog.Logger
	StartTime time.Time
	Version   string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			// Conversions routinely take tens of seconds.
			WriteTimeout: 0,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
