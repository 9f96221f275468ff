// Package main is the ytmp3 entrypoint: an HTTP service that converts YouTube
// videos to MP3 with yt-dlp, plus a couple of maintenance subcommands.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ytmp3/ytmp3/internal/config"
	"github.com/ytmp3/ytmp3/internal/logging"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "ytmp3",
		Short:        "Convert YouTube videos to MP3 over HTTP",
		Version:      fmt.Sprintf("%s (%s)", config.Version, config.GitCommit),
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		// Bare ytmp3 serves, like serve.
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd)
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file path (yaml); environment only when empty")

	rootCmd.AddCommand(
		serveCommand(a),
		doctorCommand(a),
		convertCommand(a),
	)

	return rootCmd
}

// load reads the configuration and builds a logger writing to logOut, so
// stdout stays free for command output.
func (a *app) load(logOut io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a.cfg = cfg
	a.logger = logging.NewLogger(cfg.LogLevel, cfg.Environment, logOut)
	return nil
}
