package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ytmp3/ytmp3/internal/deps"
)

var errDependenciesMissing = errors.New("one or more dependencies are missing")

func doctorCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that yt-dlp and ffmpeg are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report := deps.NewChecker(a.cfg.Tools.YtDlp, a.cfg.Tools.FFmpeg).Report()
			if err := writeReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !deps.AllAvailable(report) {
				return errDependenciesMissing
			}
			return nil
		},
	}
}

func writeReport(out io.Writer, report []deps.Status) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tROLE\tSTATUS\tPATH")
	for _, s := range report {
		status, where := "ok", s.Path
		if !s.Available {
			status, where = "missing", fmt.Sprintf("install '%s' on the system", s.Name)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Role, status, where)
	}
	return tw.Flush()
}
