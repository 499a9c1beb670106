package fetch

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ytget/yt-audio/internal/model"
)

// ErrCancelled is returned by a Handler to abort the running transfer, and is
// wrapped by Run when the transfer stopped because of it.
var ErrCancelled = errors.New("fetch cancelled")

// Format selection and output defaults
const (
	DefaultFormat         = "bestvideo+bestaudio/best"
	DefaultMergeFormat    = "mp4"
	DefaultPlaylistFolder = "playlist"
	DefaultTitle          = "untitled"
)

// Options describes one yt-dlp invocation
type Options struct {
	URL            string
	OutputTemplate string
	Format         string
	MergeFormat    string
	AudioFormat    string
	AudioQuality   string
	Playlist       bool
	KeepVideo      bool
	FFmpegLocation string
}

// OutputTemplate returns the yt-dlp output template rooted at dir. Playlist
// jobs get a per-playlist sub-folder.
func OutputTemplate(dir string, playlist bool) string {
	if playlist {
		return filepath.Join(dir, "%(playlist_title|"+DefaultPlaylistFolder+")s", "%(title|"+DefaultTitle+")s.%(ext)s")
	}
	return filepath.Join(dir, "%(title|"+DefaultTitle+")s.%(ext)s")
}

// OptionsForJob builds fetch options writing into dir, which is either the
// job's output directory or its normalization staging directory.
func OptionsForJob(job model.Job, dir, ffmpegLocation string) Options {
	return Options{
		URL:            job.URL,
		OutputTemplate: OutputTemplate(dir, job.Playlist),
		Format:         DefaultFormat,
		MergeFormat:    DefaultMergeFormat,
		AudioFormat:    job.Format,
		AudioQuality:   job.Quality,
		Playlist:       job.Playlist,
		KeepVideo:      job.KeepOriginal,
		FFmpegLocation: ffmpegLocation,
	}
}

// Handler receives transfer events. Both methods run on the goroutine that
// called Run; returning ErrCancelled (or any error) aborts the transfer.
type Handler interface {
	OnProgress(ProgressEvent) error
	OnPostprocess(PostprocessEvent) error
}

// Fetcher resolves and transfers the items of a URL
type Fetcher interface {
	// Plan lists the items the URL resolves to without downloading anything.
	Plan(ctx context.Context, opts Options) (*model.Plan, error)
	// Run transfers the plan's items. A nil plan transfers whatever the URL
	// resolves to.
	Run(ctx context.Context, opts Options, plan *model.Plan, h Handler) error
}

// PlaylistItems renders a --playlist-items selector such as "1,3,4"
func PlaylistItems(plan *model.Plan) string {
	if plan == nil {
		return ""
	}
	indices := plan.Indices()
	parts := make([]string, 0, len(indices))
	for _, idx := range indices {
		if idx > 0 {
			parts = append(parts, strconv.Itoa(idx))
		}
	}
	return strings.Join(parts, ",")
}
