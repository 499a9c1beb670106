package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ytget/yt-audio/internal/config"
	"github.com/ytget/yt-audio/internal/control"
	"github.com/ytget/yt-audio/internal/fetch"
	"github.com/ytget/yt-audio/internal/job"
	"github.com/ytget/yt-audio/internal/model"
	"github.com/ytget/yt-audio/internal/normalize"
)

const exitCancelled = 130

var errJobCancelled = errors.New("job cancelled")

// Answers for a cancel-after-current request
const (
	onCancelAsk     = "ask"
	onCancelKeep    = "keep"
	onCancelDiscard = "discard"
)

type getOptions struct {
	output       string
	format       string
	quality      string
	playlist     bool
	keepOriginal bool
	normalize    bool
	lufs         float64
	listen       string
	onCancel     string
	noInput      bool
	noProgress   bool
}

func newGetCommand(ctx *commandContext) *cobra.Command {
	var opts getOptions

	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Download the audio of a video or playlist",
		Long: "Download the audio of a video or playlist into the output directory.\n\n" +
			"While the job runs, type p to pause, r to resume, c to cancel and a to stop after the current item.\n" +
			"Ctrl+C cancels; a second Ctrl+C saves the state marker and exits immediately.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			descriptor, lufs, err := applyGetFlags(cmd, cfg, args[0], opts)
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			return runGet(cmd, cfg, descriptor, lufs, opts, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "Output directory")
	flags.StringVarP(&opts.format, "format", "f", "", "Audio format (mp3, m4a, opus, flac, wav, aac)")
	flags.StringVarP(&opts.quality, "quality", "q", "", "Audio quality passed to the extractor, e.g. 192K or 0")
	flags.BoolVar(&opts.playlist, "playlist", false, "Treat the URL as a playlist")
	flags.BoolVar(&opts.keepOriginal, "keep-original", false, "Keep the merged video container next to the audio")
	flags.BoolVar(&opts.normalize, "normalize", false, "Normalize loudness before moving files into place")
	flags.Float64Var(&opts.lufs, "lufs", 0, "Integrated loudness target for normalization")
	flags.StringVar(&opts.listen, "listen", "", "Address for the HTTP control server, e.g. 127.0.0.1:8787")
	flags.StringVar(&opts.onCancel, "on-cancel", onCancelAsk, "Item finished under cancel-after-current: ask, keep or discard")
	flags.BoolVar(&opts.noInput, "no-input", false, "Do not read commands from stdin")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

// applyGetFlags builds the job descriptor: configuration first, then any
// flag the user set explicitly
func applyGetFlags(cmd *cobra.Command, cfg *config.Config, url string, opts getOptions) (model.Job, float64, error) {
	descriptor := cfg.Job(strings.TrimSpace(url))
	lufs := cfg.Normalize.TargetLUFS
	flags := cmd.Flags()

	if flags.Changed("output") {
		dir, err := config.ExpandPath(opts.output)
		if err != nil {
			return model.Job{}, 0, fmt.Errorf("resolve output directory: %w", err)
		}
		descriptor.OutputDir = dir
	}
	if flags.Changed("format") {
		descriptor.Format = opts.format
	}
	if flags.Changed("quality") {
		descriptor.Quality = opts.quality
	}
	if flags.Changed("playlist") {
		descriptor.Playlist = opts.playlist
	}
	if flags.Changed("keep-original") {
		descriptor.KeepOriginal = opts.keepOriginal
	}
	if flags.Changed("normalize") {
		descriptor.Normalize = opts.normalize
	}
	if flags.Changed("lufs") {
		lufs = opts.lufs
	}

	switch opts.onCancel {
	case onCancelAsk, onCancelKeep, onCancelDiscard:
	default:
		return model.Job{}, 0, fmt.Errorf("invalid --on-cancel value %q (want ask, keep or discard)", opts.onCancel)
	}

	validated, err := descriptor.Validate()
	if err != nil {
		return model.Job{}, 0, err
	}
	return validated, lufs, nil
}

func runGet(cmd *cobra.Command, cfg *config.Config, descriptor model.Job, lufs float64, opts getOptions, logger *slog.Logger) error {
	errOut := cmd.ErrOrStderr()
	interactive := !opts.noInput && isTerminal(os.Stdin)

	var con *console
	if interactive {
		con = newConsole(os.Stdin, errOut)
	}

	renderer := newProgressRenderer(errOut, !opts.noProgress && isTerminal(os.Stderr))

	planner := fetch.NewLibraryPlanner()
	planner.SetTimeout(cfg.PlanTimeout())
	fetcher := fetch.NewYTDLP(
		fetch.WithExecutable(cfg.Fetch.YtDlpPath),
		fetch.WithFallbackPlanner(planner),
		fetch.WithFetchLogger(logger),
	)

	deps := job.Deps{
		Fetcher:   fetcher,
		Confirmer: confirmerFor(opts.onCancel, con),
		Hooks:     renderer.hooks(),
		Logger:    logger,
	}
	if descriptor.Normalize {
		binary := cfg.Normalize.FFmpegPath
		if binary == "" {
			binary = cfg.Fetch.FFmpegLocation
		}
		deps.Normalizer = normalize.NewFFmpeg(
			normalize.WithBinary(binary),
			normalize.WithLoudnessRange(cfg.Normalize.TruePeak, cfg.Normalize.LRA),
			normalize.WithLogger(logger),
		)
	}

	ctrl, err := job.New(descriptor, deps,
		job.WithTargetLUFS(lufs),
		job.WithRetryPolicy(cfg.RetryPolicy()),
		job.WithFFmpegLocation(cfg.Fetch.FFmpegLocation),
		job.WithMarkerFileName(cfg.Cleanup.MarkerFile),
	)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	listen := cfg.Control.Listen
	if opts.listen != "" {
		listen = opts.listen
	}
	if listen != "" {
		startControlServer(runCtx, ctrl, listen, logger, errOut)
	}

	if con != nil {
		go con.run(runCtx, ctrl)
	}
	go handleInterrupts(runCtx, ctrl, errOut)

	phase := ctrl.Start(runCtx)
	renderer.finish()
	return phaseResult(phase, ctrl)
}

func startControlServer(ctx context.Context, ctrl *job.Controller, listen string, logger *slog.Logger, out io.Writer) {
	tracker := job.NewTracker(ctrl)
	hub := control.NewHub(ctrl.ID(), logger)
	ctrl.AttachHooks(tracker.Hooks().Chain(hub.Hooks()))

	srv := control.NewServer(ctrl, tracker, hub, logger)
	fmt.Fprintf(out, "Control server listening on http://%s\n", listen)
	go func() {
		defer hub.Close()
		if err := srv.ListenAndServe(ctx, listen); err != nil {
			logger.Error("control server stopped", slog.String("error", err.Error()))
		}
	}()
}

// handleInterrupts cancels on the first signal; the second saves the marker
// and exits without waiting for cleanup
func handleInterrupts(ctx context.Context, ctrl *job.Controller, out io.Writer) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	received := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			received++
			if received == 1 {
				fmt.Fprintln(out, "Cancelling... press Ctrl+C again to exit now")
				ctrl.Cancel()
				continue
			}
			if err := ctrl.Checkpoint(); err != nil {
				fmt.Fprintf(out, "Save state marker: %v\n", err)
			}
			os.Exit(exitCancelled)
		}
	}
}

func confirmerFor(mode string, con *console) job.Confirmer {
	switch {
	case mode == onCancelDiscard:
		return job.AlwaysDiscard
	case mode == onCancelAsk && con != nil:
		return con
	default:
		return job.AlwaysKeep
	}
}

func phaseResult(phase model.Phase, ctrl *job.Controller) error {
	switch phase {
	case model.PhaseCompleted:
		return nil
	case model.PhaseCancelled:
		return errJobCancelled
	default:
		return fmt.Errorf("job %s ended in phase %s", ctrl.ID(), phase)
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
