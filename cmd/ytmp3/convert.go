package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ytmp3/ytmp3/internal/apperr"
	"github.com/ytmp3/ytmp3/internal/deps"
	"github.com/ytmp3/ytmp3/internal/youtube"
)

func convertCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <url>",
		Short: "Convert a single YouTube URL to MP3 and print the file path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSpace(args[0])
			if !youtube.IsYouTubeURL(url) {
				return apperr.New(apperr.ErrValidation, "Please provide a valid YouTube URL.")
			}

			if err := deps.NewChecker(a.cfg.Tools.YtDlp, a.cfg.Tools.FFmpeg).Check(); err != nil {
				return err
			}

			converter, err := newConverter(a.cfg, a.logger)
			if err != nil {
				return err
			}

			path, err := converter.Convert(cmd.Context(), url)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
