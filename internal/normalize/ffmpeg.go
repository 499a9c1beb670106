package normalize

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// FFmpeg constants for loudness normalization
const (
	// Loudness targets
	DefaultTargetLUFS = -14.0
	DefaultTruePeak   = -1.5
	DefaultLRA        = 11.0

	// Executable and I/O constants
	FFmpegCommand       = "ffmpeg"
	FFprobeCommand      = "ffprobe"
	FFprobeLogLevel     = "error"
	FFprobeShowEntries  = "format=duration"
	FFprobeOutputFormat = "csv=p=0"
	ProgressPipeTarget  = "pipe:1"
	ProgressTimePrefix  = "out_time_us="
	TempSuffix          = ".normalized.tmp"
)

// Normalizer rewrites an audio file in place at the target integrated loudness
type Normalizer interface {
	Normalize(ctx context.Context, path string, targetLUFS float64) error
}

// ProgressFunc receives the fraction (0..1) of a file already processed
type ProgressFunc func(path string, fraction float64)

// FFmpeg normalizes audio with the ffmpeg loudnorm filter
type FFmpeg struct {
	binary      string
	probeBinary string
	truePeak    float64
	lra         float64
	onProgress  ProgressFunc
	logger      *slog.Logger
}

// Option customizes the ffmpeg normalizer
type Option func(*FFmpeg)

// WithBinary sets the ffmpeg executable. A directory is accepted too, in which
// case ffmpeg and ffprobe are looked up inside it.
func WithBinary(path string) Option {
	return func(f *FFmpeg) {
		if path == "" {
			return
		}
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			f.binary = filepath.Join(path, FFmpegCommand)
			f.probeBinary = filepath.Join(path, FFprobeCommand)
			return
		}
		f.binary = path
		f.probeBinary = filepath.Join(filepath.Dir(path), FFprobeCommand)
	}
}

// WithLoudnessRange overrides the true peak and loudness range targets
func WithLoudnessRange(truePeak, lra float64) Option {
	return func(f *FFmpeg) {
		f.truePeak = truePeak
		f.lra = lra
	}
}

// WithProgress sets a callback for per-file progress
func WithProgress(fn ProgressFunc) Option {
	return func(f *FFmpeg) {
		f.onProgress = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *FFmpeg) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFFmpeg creates an ffmpeg-backed normalizer
func NewFFmpeg(opts ...Option) *FFmpeg {
	f := &FFmpeg{
		binary:      FFmpegCommand,
		probeBinary: FFprobeCommand,
		truePeak:    DefaultTruePeak,
		lra:         DefaultLRA,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Normalize writes the normalized audio to a sibling temp file with the same
// extension and renames it over the input. The temp file is removed on failure.
func (f *FFmpeg) Normalize(ctx context.Context, path string, targetLUFS float64) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("input file does not exist: %s", path)
	}

	tmpPath := TempPath(path)

	// Duration is only needed for progress reporting
	var duration float64
	if f.onProgress != nil {
		d, err := f.probeDuration(ctx, path)
		if err != nil {
			f.logger.Debug("ffprobe duration unavailable", slog.String("path", path), slog.Any("error", err))
		}
		duration = d
	}

	args := f.BuildArgs(path, tmpPath, targetLUFS)
	cmd := exec.CommandContext(ctx, f.binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	f.monitorProgress(stdout, path, duration)

	if err := cmd.Wait(); err != nil {
		_ = os.Remove(tmpPath)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg loudnorm failed for %s: %w: %s", filepath.Base(path), err, lastLine(stderr.String()))
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace %s with normalized audio: %w", path, err)
	}
	return nil
}

// BuildArgs builds the ffmpeg command arguments
func (f *FFmpeg) BuildArgs(inputPath, outputPath string, targetLUFS float64) []string {
	return []string{
		"-y",            // Overwrite output file
		"-i", inputPath, // Input file
		"-af", LoudnormFilter(targetLUFS, f.truePeak, f.lra), // Loudness filter
		"-map_metadata", "0", // Keep tags
		"-progress", ProgressPipeTarget, // Progress to stdout
		"-nostats",
		outputPath,
	}
}

// LoudnormFilter renders the ffmpeg loudnorm filter expression
func LoudnormFilter(lufs, truePeak, lra float64) string {
	return fmt.Sprintf("loudnorm=I=%s:TP=%s:LRA=%s", formatFloat(lufs), formatFloat(truePeak), formatFloat(lra))
}

// TempPath returns the sibling temp path used while normalizing path; the
// extension is preserved so ffmpeg picks the same muxer.
func TempPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + TempSuffix + ext
}

// probeDuration gets the duration of a media file using ffprobe
func (f *FFmpeg) probeDuration(ctx context.Context, filePath string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.probeBinary, "-v", FFprobeLogLevel, "-show_entries", FFprobeShowEntries, "-of", FFprobeOutputFormat, filePath)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to run ffprobe: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return duration, nil
}

// monitorProgress consumes ffmpeg -progress output until the pipe closes
func (f *FFmpeg) monitorProgress(r io.Reader, path string, totalDuration float64) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fraction, ok := ParseProgressLine(scanner.Text(), totalDuration)
		if ok && f.onProgress != nil {
			f.onProgress(path, fraction)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		f.logger.Debug("ffmpeg progress stream ended", slog.Any("error", err))
	}
}

// ParseProgressLine parses an "out_time_us=123456" line into a clamped
// fraction of totalDuration seconds.
func ParseProgressLine(line string, totalDuration float64) (float64, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, ProgressTimePrefix) || totalDuration <= 0 {
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimPrefix(line, ProgressTimePrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	progress := float64(us) / 1_000_000.0 / totalDuration
	if progress > 1.0 {
		progress = 1.0
	}
	if progress < 0 {
		progress = 0
	}
	return progress, true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
