package fetch

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// External executables
const (
	YTDLPCommand   = "yt-dlp"
	FFmpegCommand  = "ffmpeg"
	FFprobeCommand = "ffprobe"
)

// DependencyReport describes which external tools were found
type DependencyReport struct {
	YTDLPFound   bool   `json:"yt_dlp_found"`
	YTDLPPath    string `json:"yt_dlp_path,omitempty"`
	FFmpegFound  bool   `json:"ffmpeg_found"`
	FFmpegPath   string `json:"ffmpeg_path,omitempty"`
	FFprobeFound bool   `json:"ffprobe_found"`
	FFprobePath  string `json:"ffprobe_path,omitempty"`
}

// DependencyStatus looks up the external tools. Explicit paths take
// precedence over PATH lookups when non-empty.
func DependencyStatus(ytdlpPath, ffmpegPath string) DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath(orDefault(ytdlpPath, YTDLPCommand)); err == nil {
		report.YTDLPFound = true
		report.YTDLPPath = path
	}
	if info, err := os.Stat(ffmpegPath); err == nil && info.IsDir() {
		ffmpegPath = filepath.Join(ffmpegPath, FFmpegCommand)
	}
	if path, err := exec.LookPath(orDefault(ffmpegPath, FFmpegCommand)); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	if path, err := exec.LookPath(FFprobeCommand); err == nil {
		report.FFprobeFound = true
		report.FFprobePath = path
	}
	return report
}

// CheckDependencies fails when a tool required for every job is missing
func CheckDependencies(ytdlpPath, ffmpegPath string) error {
	report := DependencyStatus(ytdlpPath, ffmpegPath)
	if !report.YTDLPFound {
		return fmt.Errorf("missing dependency: yt-dlp is not installed or not on PATH")
	}
	if !report.FFmpegFound {
		return fmt.Errorf("missing dependency: ffmpeg is required for audio extraction and was not found on PATH")
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
