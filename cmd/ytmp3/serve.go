package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ytmp3/ytmp3/internal/api"
	"github.com/ytmp3/ytmp3/internal/catalog"
	"github.com/ytmp3/ytmp3/internal/config"
	"github.com/ytmp3/ytmp3/internal/convert"
	"github.com/ytmp3/ytmp3/internal/db"
	"github.com/ytmp3/ytmp3/internal/deps"
	"github.com/ytmp3/ytmp3/internal/fileserver"
	"github.com/ytmp3/ytmp3/internal/logging"
	"github.com/ytmp3/ytmp3/internal/metrics"
)

func serveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd)
		},
	}
}

func (a *app) runServe(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.serve(ctx)
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	startTime := time.Now()

	logger.Info("starting ytmp3",
		"version", config.Version,
		"commit", config.GitCommit,
		"output_dir", logging.SanitizePath(cfg.OutputDir),
	)

	converter, err := newConverter(cfg, logger)
	if err != nil {
		return err
	}

	history, closeHistory := openHistory(cfg, logger)
	defer closeHistory()

	static, err := fileserver.StaticFS(cfg.StaticDir)
	if err != nil {
		return fmt.Errorf("invalid static dir: %w", err)
	}

	checker := deps.NewChecker(cfg.Tools.YtDlp, cfg.Tools.FFmpeg)
	for _, s := range checker.Report() {
		if !s.Available {
			logger.Warn("dependency not found; conversions will fail until installed", "tool", s.Name)
		}
	}

	m := metrics.New()
	server := api.NewServer(api.ServerConfig{
		Addr:              cfg.HTTP.Addr,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
		Converter:         converter,
		Checker:           checker,
		History:           history,
		Metrics:           m,
		Downloads:         fileserver.NewServer(cfg.OutputDir, logger, m.DownloadServed),
		Static:            fileserver.StaticHandler(static),
		Logger:            logger,
		StartTime:         startTime,
		Version:           config.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return err
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("ytmp3 stopped")
	return nil
}

func newConverter(cfg *config.Config, logger *slog.Logger) (*convert.SubprocessRunner, error) {
	convCfg := convert.DefaultConfig(cfg.OutputDir, logging.WithComponent(logger, "convert"))
	convCfg.Binary = cfg.Tools.YtDlp
	convCfg.TitleMaxBytes = cfg.Convert.TitleMaxBytes
	convCfg.AudioQuality = cfg.Convert.AudioQuality
	convCfg.Timeout = cfg.Convert.Timeout

	runner, err := convert.NewRunner(convCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize converter: %w", err)
	}
	return runner, nil
}

// openHistory returns the conversion history and a func releasing it. A
// database that cannot be opened disables history instead of failing
// startup.
func openHistory(cfg *config.Config, logger *slog.Logger) (catalog.History, func()) {
	if !cfg.HistoryEnabled {
		logger.Info("conversion history disabled")
		return catalog.Disabled{}, func() {}
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		logger.Warn("conversion history unavailable", "db_path", logging.SanitizePath(cfg.DBPath()), "error", err)
		return catalog.Disabled{}, func() {}
	}

	closeFn := func() {
		if err := database.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}
	return catalog.NewService(catalog.NewRepository(database.Conn()), logger), closeFn
}
