package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Audio formats accepted as extraction targets
const (
	FormatMP3  = "mp3"
	FormatM4A  = "m4a"
	FormatOpus = "opus"
	FormatFLAC = "flac"
	FormatWAV  = "wav"
	FormatAAC  = "aac"
)

// OriginalContainerExt is the container yt-dlp merges the source streams into.
const OriginalContainerExt = ".mp4"

// ErrInvalidJob is returned when a job descriptor fails validation.
var ErrInvalidJob = errors.New("invalid job")

var supportedFormats = map[string]struct{}{
	FormatMP3:  {},
	FormatM4A:  {},
	FormatOpus: {},
	FormatFLAC: {},
	FormatWAV:  {},
	FormatAAC:  {},
}

// Job is the immutable per-run configuration of a download job.
type Job struct {
	URL          string `json:"url"`
	OutputDir    string `json:"output_path"`
	Format       string `json:"format"`
	Quality      string `json:"quality"`
	Playlist     bool   `json:"playlist"`
	KeepOriginal bool   `json:"keep_original"`
	Normalize    bool   `json:"normalize"`
}

// Validate checks the descriptor and returns a normalized copy with an
// absolute output directory and a lower-case format.
func (j Job) Validate() (Job, error) {
	url := strings.TrimSpace(j.URL)
	if url == "" {
		return Job{}, fmt.Errorf("%w: url is required", ErrInvalidJob)
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return Job{}, fmt.Errorf("%w: unsupported url %q", ErrInvalidJob, url)
	}

	dir := strings.TrimSpace(j.OutputDir)
	if dir == "" {
		return Job{}, fmt.Errorf("%w: output directory is required", ErrInvalidJob)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Job{}, fmt.Errorf("%w: resolve output directory %s: %v", ErrInvalidJob, dir, err)
	}

	format := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(j.Format), "."))
	if _, ok := supportedFormats[format]; !ok {
		return Job{}, fmt.Errorf("%w: unsupported audio format %q", ErrInvalidJob, j.Format)
	}

	out := j
	out.URL = url
	out.OutputDir = abs
	out.Format = format
	out.Quality = strings.TrimSpace(j.Quality)
	return out, nil
}

// AudioExt returns the target audio extension including the leading dot.
func (j Job) AudioExt() string {
	return "." + strings.ToLower(j.Format)
}

// AllowedExts returns the extensions that survive cleanup for this job.
func (j Job) AllowedExts() map[string]struct{} {
	allowed := map[string]struct{}{j.AudioExt(): {}}
	if j.KeepOriginal {
		allowed[OriginalContainerExt] = struct{}{}
	}
	return allowed
}
