package fetch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Progress statuses reported by yt-dlp
const (
	StatusDownloading = "downloading"
	StatusFinished    = "finished"
	StatusError       = "error"
)

// Line prefixes that tag machine-readable events in yt-dlp output
const (
	ProgressPrefix    = "[yt-audio:progress] "
	PostprocessPrefix = "[yt-audio:done] "
)

// progressTemplate is passed to --progress-template. Missing fields render as
// null because the invocation sets --output-na-placeholder to "null".
const progressTemplate = "download:" + ProgressPrefix +
	`{"progress":%(progress)j,` +
	`"info_filename":%(info._filename)j,` +
	`"title":%(info.title)j,` +
	`"playlist_index":%(info.playlist_index)j,` +
	`"playlist_count":%(info.n_entries)j,` +
	`"playlist_title":%(info.playlist_title)j,` +
	`"stream_files":%(info.requested_formats.:.filepath)j}`

// postprocessTemplate is passed to --print and fires once per item after all
// post-processors ran and the file was moved to its final name.
const postprocessTemplate = "after_move:" + PostprocessPrefix +
	`{"filepath":%(filepath)j,` +
	`"filename":%(_filename)j,` +
	`"title":%(title)j,` +
	`"playlist_index":%(playlist_index)j,` +
	`"playlist_count":%(n_entries)j,` +
	`"playlist_title":%(playlist_title)j}`

// ProgressEvent is one progress-hook invocation
type ProgressEvent struct {
	Status             string
	Filename           string
	TmpFilename        string
	InfoFilename       string
	DownloadedBytes    float64
	TotalBytes         float64
	TotalBytesEstimate float64
	Title              string
	PlaylistIndex      int
	PlaylistCount      int
	PlaylistTitle      string
	// StreamFiles are the per-stream paths of separately fetched formats
	StreamFiles []string
}

// MainPath returns the path currently being written
func (e ProgressEvent) MainPath() string {
	if e.Filename != "" {
		return e.Filename
	}
	return e.InfoFilename
}

// Percent returns downloaded/total clamped to [0,100]. ok is false while the
// total size is still unknown.
func (e ProgressEvent) Percent() (float64, bool) {
	total := e.TotalBytes
	if total <= 0 {
		total = e.TotalBytesEstimate
	}
	if total <= 0 {
		return 0, false
	}
	percent := e.DownloadedBytes / total * 100
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return percent, true
}

// PostprocessEvent is one post-processing-hook invocation
type PostprocessEvent struct {
	Status        string
	Filepath      string
	Filename      string
	InfoFilename  string
	Title         string
	PlaylistIndex int
	PlaylistCount int
	PlaylistTitle string
}

// Path returns the most specific output path offered by the event
func (e PostprocessEvent) Path() string {
	switch {
	case e.Filepath != "":
		return e.Filepath
	case e.Filename != "":
		return e.Filename
	default:
		return e.InfoFilename
	}
}

type progressLine struct {
	Progress struct {
		Status             string   `json:"status"`
		Filename           string   `json:"filename"`
		TmpFilename        string   `json:"tmpfilename"`
		DownloadedBytes    *float64 `json:"downloaded_bytes"`
		TotalBytes         *float64 `json:"total_bytes"`
		TotalBytesEstimate *float64 `json:"total_bytes_estimate"`
	} `json:"progress"`
	InfoFilename  string   `json:"info_filename"`
	Title         string   `json:"title"`
	PlaylistIndex *int     `json:"playlist_index"`
	PlaylistCount *int     `json:"playlist_count"`
	PlaylistTitle string   `json:"playlist_title"`
	StreamFiles   []string `json:"stream_files"`
}

type postprocessLine struct {
	Filepath      string `json:"filepath"`
	Filename      string `json:"filename"`
	Title         string `json:"title"`
	PlaylistIndex *int   `json:"playlist_index"`
	PlaylistCount *int   `json:"playlist_count"`
	PlaylistTitle string `json:"playlist_title"`
}

// ParseProgressLine decodes a line emitted through the progress template
func ParseProgressLine(line string) (ProgressEvent, bool, error) {
	payload, ok := cutPrefix(line, ProgressPrefix)
	if !ok {
		return ProgressEvent{}, false, nil
	}

	var raw progressLine
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return ProgressEvent{}, true, fmt.Errorf("decode progress line: %w", err)
	}

	ev := ProgressEvent{
		Status:             raw.Progress.Status,
		Filename:           raw.Progress.Filename,
		TmpFilename:        raw.Progress.TmpFilename,
		InfoFilename:       raw.InfoFilename,
		DownloadedBytes:    deref(raw.Progress.DownloadedBytes),
		TotalBytes:         deref(raw.Progress.TotalBytes),
		TotalBytesEstimate: deref(raw.Progress.TotalBytesEstimate),
		Title:              raw.Title,
		PlaylistIndex:      derefInt(raw.PlaylistIndex),
		PlaylistCount:      derefInt(raw.PlaylistCount),
		PlaylistTitle:      raw.PlaylistTitle,
	}
	for _, f := range raw.StreamFiles {
		if f != "" {
			ev.StreamFiles = append(ev.StreamFiles, f)
		}
	}
	return ev, true, nil
}

// ParsePostprocessLine decodes a line emitted through the after_move print
func ParsePostprocessLine(line string) (PostprocessEvent, bool, error) {
	payload, ok := cutPrefix(line, PostprocessPrefix)
	if !ok {
		return PostprocessEvent{}, false, nil
	}

	var raw postprocessLine
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return PostprocessEvent{}, true, fmt.Errorf("decode post-processing line: %w", err)
	}
	return PostprocessEvent{
		Status:        StatusFinished,
		Filepath:      raw.Filepath,
		Filename:      raw.Filename,
		Title:         raw.Title,
		PlaylistIndex: derefInt(raw.PlaylistIndex),
		PlaylistCount: derefInt(raw.PlaylistCount),
		PlaylistTitle: raw.PlaylistTitle,
	}, true, nil
}

// cutPrefix finds the event prefix anywhere in the line; yt-dlp may emit a
// carriage return or a log tag before it.
func cutPrefix(line, prefix string) (string, bool) {
	idx := strings.Index(line, prefix)
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(line[idx+len(prefix):]), true
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
