package config

import (
	"github.com/ytget/yt-audio/internal/marker"
	"github.com/ytget/yt-audio/internal/model"
	"github.com/ytget/yt-audio/internal/normalize"
	"github.com/ytget/yt-audio/internal/platform"
	"github.com/ytget/yt-audio/internal/registry"
)

const (
	defaultConfigPath = "~/.config/yt-audio/config.toml"
	envConfigPath     = "YT_AUDIO_CONFIG"

	defaultFormat      = model.FormatMP3
	defaultQuality     = "192K"
	defaultMarkerFile  = marker.DefaultFileName
	defaultLogLevel    = "info"
	defaultLogFormat   = "console"
	defaultPlanTimeout = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	outputDir, err := platform.GetDefaultOutputDir()
	if err != nil {
		outputDir = "~/Music/yt-audio"
	}
	return Config{
		Output: Output{
			Dir:     outputDir,
			Format:  defaultFormat,
			Quality: defaultQuality,
		},
		Fetch: Fetch{
			PlanTimeoutSeconds: defaultPlanTimeout,
		},
		Normalize: Normalize{
			TargetLUFS: normalize.DefaultTargetLUFS,
			TruePeak:   normalize.DefaultTruePeak,
			LRA:        normalize.DefaultLRA,
		},
		Cleanup: Cleanup{
			ReleaseWaitMillis:  int(registry.DefaultReleaseWait.Milliseconds()),
			PurgeAttempts:      registry.DefaultPurgeAttempts,
			PurgeBackoffMillis: int(registry.DefaultPurgeBackoff.Milliseconds()),
			MarkerFile:         defaultMarkerFile,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
