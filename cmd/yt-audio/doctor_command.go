package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ytget/yt-audio/internal/fetch"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that yt-dlp, ffmpeg and ffprobe are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ffmpeg := cfg.Normalize.FFmpegPath
			if ffmpeg == "" {
				ffmpeg = cfg.Fetch.FFmpegLocation
			}
			report := fetch.DependencyStatus(cfg.Fetch.YtDlpPath, ffmpeg)

			if asJSON {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				rows := [][]string{
					dependencyRow(fetch.YTDLPCommand, report.YTDLPFound, report.YTDLPPath, "required"),
					dependencyRow(fetch.FFmpegCommand, report.FFmpegFound, report.FFmpegPath, "required"),
					dependencyRow(fetch.FFprobeCommand, report.FFprobeFound, report.FFprobePath, "normalization"),
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Tool", "Found", "Path", "Needed for"}, rows))
			}
			return fetch.CheckDependencies(cfg.Fetch.YtDlpPath, ffmpeg)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func dependencyRow(name string, found bool, path, need string) []string {
	if path == "" {
		path = "-"
	}
	return []string{name, yesNo(found), path, need}
}
