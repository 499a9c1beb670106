package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ytget/yt-audio/internal/model"
	"github.com/ytget/yt-audio/internal/registry"
)

//go:embed sample_config.toml
var sampleConfig string

// Output holds the default job descriptor values.
type Output struct {
	Dir          string `toml:"dir"`
	Format       string `toml:"format"`
	Quality      string `toml:"quality"`
	Playlist     bool   `toml:"playlist"`
	KeepOriginal bool   `toml:"keep_original"`
}

// Fetch configures the yt-dlp invocation.
type Fetch struct {
	YtDlpPath          string `toml:"ytdlp_path"`
	FFmpegLocation     string `toml:"ffmpeg_location"`
	PlanTimeoutSeconds int    `toml:"plan_timeout_seconds"`
}

// Normalize configures the loudness normalization step.
type Normalize struct {
	Enabled    bool    `toml:"enabled"`
	FFmpegPath string  `toml:"ffmpeg_path"`
	TargetLUFS float64 `toml:"target_lufs"`
	TruePeak   float64 `toml:"true_peak"`
	LRA        float64 `toml:"lra"`
}

// Cleanup configures the cancelled-file purge and the state marker.
type Cleanup struct {
	ReleaseWaitMillis  int    `toml:"release_wait_ms"`
	PurgeAttempts      int    `toml:"purge_attempts"`
	PurgeBackoffMillis int    `toml:"purge_backoff_ms"`
	MarkerFile         string `toml:"marker_file"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Control configures the optional HTTP control server.
type Control struct {
	Listen string `toml:"listen"`
}

// Config encapsulates all configuration values for yt-audio.
type Config struct {
	Output    Output    `toml:"output"`
	Fetch     Fetch     `toml:"fetch"`
	Normalize Normalize `toml:"normalize"`
	Cleanup   Cleanup   `toml:"cleanup"`
	Logging   Logging   `toml:"logging"`
	Control   Control   `toml:"control"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, normalizes and validates a configuration file. A
// missing file yields the defaults; exists reports whether a file was read.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		if env := strings.TrimSpace(os.Getenv(envConfigPath)); env != "" {
			path = env
		} else {
			path = defaultConfigPath
		}
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Output.Dir, err = expandPath(strings.TrimSpace(c.Output.Dir)); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	c.Output.Format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Output.Format), "."))
	c.Output.Quality = strings.TrimSpace(c.Output.Quality)

	if c.Fetch.YtDlpPath, err = expandBinary(c.Fetch.YtDlpPath); err != nil {
		return fmt.Errorf("fetch.ytdlp_path: %w", err)
	}
	if c.Fetch.FFmpegLocation, err = expandBinary(c.Fetch.FFmpegLocation); err != nil {
		return fmt.Errorf("fetch.ffmpeg_location: %w", err)
	}
	if c.Normalize.FFmpegPath, err = expandBinary(c.Normalize.FFmpegPath); err != nil {
		return fmt.Errorf("normalize.ffmpeg_path: %w", err)
	}

	c.Cleanup.MarkerFile = strings.TrimSpace(c.Cleanup.MarkerFile)
	if c.Cleanup.MarkerFile == "" {
		c.Cleanup.MarkerFile = defaultMarkerFile
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}

	c.Control.Listen = strings.TrimSpace(c.Control.Listen)
	return nil
}

// Job builds a job descriptor for url from the configured defaults
func (c *Config) Job(url string) model.Job {
	return model.Job{
		URL:          url,
		OutputDir:    c.Output.Dir,
		Format:       c.Output.Format,
		Quality:      c.Output.Quality,
		Playlist:     c.Output.Playlist,
		KeepOriginal: c.Output.KeepOriginal,
		Normalize:    c.Normalize.Enabled,
	}
}

// RetryPolicy returns the cancelled-file purge policy
func (c *Config) RetryPolicy() registry.RetryPolicy {
	return registry.RetryPolicy{
		ReleaseWait: time.Duration(c.Cleanup.ReleaseWaitMillis) * time.Millisecond,
		Attempts:    c.Cleanup.PurgeAttempts,
		Backoff:     time.Duration(c.Cleanup.PurgeBackoffMillis) * time.Millisecond,
	}
}

// PlanTimeout returns the timeout for the no-download plan call
func (c *Config) PlanTimeout() time.Duration {
	return time.Duration(c.Fetch.PlanTimeoutSeconds) * time.Second
}

// LogOutputs returns the logging output paths: stderr plus the optional file
func (c *Config) LogOutputs() []string {
	outputs := []string{"stderr"}
	if c.Logging.File != "" {
		outputs = append(outputs, c.Logging.File)
	}
	return outputs
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// expandBinary expands paths but leaves bare executable names for PATH lookup
func expandBinary(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" || !strings.ContainsAny(value, `/\~`) {
		return value, nil
	}
	return expandPath(value)
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
