package main

import (
	"fmt"
	"log/slog"
	"os"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"

	"github.com/ytget/yt-audio/internal/config"
	"github.com/ytget/yt-audio/internal/fetch"
	"github.com/ytget/yt-audio/internal/job"
	"github.com/ytget/yt-audio/internal/logging"
	"github.com/ytget/yt-audio/internal/model"
	"github.com/ytget/yt-audio/internal/normalize"
	"github.com/ytget/yt-audio/internal/platform"
	"github.com/ytget/yt-audio/internal/ui"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const (
	AppID   = "com.ytget.yt-audio"
	AppName = "YT Audio"
)

func main() {
	cfg, _, _, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v; using defaults\n", err)
		def := config.Default()
		cfg = &def
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.LogOutputs(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		logger = slog.Default()
	}
	logger.Info("starting", slog.String("app", AppName), slog.String("version", version))

	if err := fetch.CheckDependencies(cfg.Fetch.YtDlpPath, cfg.Fetch.FFmpegLocation); err != nil {
		logger.Warn("dependency check failed", slog.String("error", err.Error()))
	}

	myApp := app.NewWithID(AppID)
	myApp.Settings().SetTheme(ui.NewCompactTheme())

	myWindow := myApp.NewWindow(fmt.Sprintf("%s v%s", AppName, version))
	myWindow.Resize(fyne.NewSize(ui.WindowWidth, ui.WindowHeight))

	settings := config.NewSettings(myApp, cfg)
	if err := platform.CreateDirectoryIfNotExists(settings.GetOutputDirectory()); err != nil {
		logger.Warn("failed to ensure output dir", slog.String("error", err.Error()))
	}

	ui.NewRootUI(myWindow, myApp, settings, newJobFactory(cfg, logger), logger)
	myWindow.ShowAndRun()
}

// newJobFactory wires the yt-dlp fetcher and the ffmpeg normalizer into every
// job the window starts
func newJobFactory(cfg *config.Config, logger *slog.Logger) ui.JobFactory {
	planner := fetch.NewLibraryPlanner()
	planner.SetTimeout(cfg.PlanTimeout())
	fetcher := fetch.NewYTDLP(
		fetch.WithExecutable(cfg.Fetch.YtDlpPath),
		fetch.WithFallbackPlanner(planner),
		fetch.WithFetchLogger(logger),
	)

	return func(desc model.Job, confirmer job.Confirmer, hooks job.Hooks) (*job.Controller, error) {
		deps := job.Deps{
			Fetcher:   fetcher,
			Confirmer: confirmer,
			Hooks:     hooks,
			Logger:    logger,
		}
		if desc.Normalize {
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
		return job.New(desc, deps,
			job.WithTargetLUFS(cfg.Normalize.TargetLUFS),
			job.WithRetryPolicy(cfg.RetryPolicy()),
			job.WithFFmpegLocation(cfg.Fetch.FFmpegLocation),
			job.WithMarkerFileName(cfg.Cleanup.MarkerFile),
		)
	}
}
