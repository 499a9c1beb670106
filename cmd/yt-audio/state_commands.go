package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ytget/yt-audio/internal/marker"
)

type markerStatus struct {
	Directory string        `json:"directory"`
	Marker    string        `json:"marker"`
	Running   bool          `json:"running"`
	State     *marker.State `json:"state,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [dir]",
		Short: "Show the interrupted job recorded in an output directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, dir, err := markerStore(ctx, args)
			if err != nil {
				return err
			}
			running, err := store.IsLocked()
			if err != nil {
				return err
			}
			state, err := store.Load()
			if err != nil && !errors.Is(err, marker.ErrNotFound) {
				return err
			}

			status := markerStatus{Directory: dir, Marker: store.Path(), Running: running, State: state}
			if asJSON {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			if state == nil {
				if running {
					fmt.Fprintf(out, "A job is running in %s\n", dir)
				} else {
					fmt.Fprintf(out, "No interrupted job in %s\n", dir)
				}
				return nil
			}
			fmt.Fprintln(out, renderFields(statusFields(status)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func statusFields(s markerStatus) [][2]string {
	st := s.State
	saved := ""
	if !st.SavedAt.IsZero() {
		saved = st.SavedAt.Local().Format(time.DateTime)
	}
	return [][2]string{
		{"Directory", s.Directory},
		{"Job ID", st.JobID},
		{"URL", st.URL},
		{"Format", st.Format},
		{"Quality", st.Quality},
		{"Playlist", yesNo(st.Playlist)},
		{"Keep original", yesNo(st.KeepOriginal)},
		{"Normalize", yesNo(st.Normalize)},
		{"Paused", yesNo(st.Paused)},
		{"Running", yesNo(s.Running)},
		{"Saved", saved},
	}
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [dir]",
		Short: "Remove a stale state marker",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, dir, err := markerStore(ctx, args)
			if err != nil {
				return err
			}
			running, err := store.IsLocked()
			if err != nil {
				return err
			}
			if running {
				return fmt.Errorf("a job is running in %s; refusing to clear its marker", dir)
			}
			if !store.Exists() {
				fmt.Fprintf(cmd.OutOrStdout(), "No state marker in %s\n", dir)
				return nil
			}
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", store.Path())
			return nil
		},
	}
}

func markerStore(ctx *commandContext, args []string) (*marker.Store, string, error) {
	dir, err := ctx.outputDir(args)
	if err != nil {
		return nil, "", err
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, "", err
	}
	return marker.New(dir, marker.WithFileName(cfg.Cleanup.MarkerFile)), dir, nil
}
