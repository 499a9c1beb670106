package platform

import (
	"path/filepath"

	"github.com/ytget/yt-audio/internal/model"
)

// DefaultPlaylistFolder is used when a playlist entry carries no playlist title
const DefaultPlaylistFolder = "playlist"

// FinalPath computes the deterministic location an item ends up at once the
// job completes: <output>/<title>.<ext>, or <output>/<playlist>/<title>.<ext>
// for playlist jobs.
func FinalPath(job model.Job, item *model.PlanItem) string {
	title := SanitizeFilename(item.Title)
	name := title + job.AudioExt()

	var path string
	if job.Playlist {
		folder := item.PlaylistTitle
		if folder == "" {
			folder = DefaultPlaylistFolder
		}
		path = filepath.Join(job.OutputDir, SanitizeFilename(folder), name)
	} else {
		path = filepath.Join(job.OutputDir, name)
	}

	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// IsCachedFinal reports whether the item's final file already exists. The
// check is filename based only; content is never verified.
func IsCachedFinal(job model.Job, item *model.PlanItem) bool {
	if item == nil {
		return false
	}
	return FileExists(FinalPath(job, item))
}
