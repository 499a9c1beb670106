package normalize

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// TrackLabel returns "Artist - Title" from the file's tags, falling back to the
// filename without extension when tags are missing or unreadable.
func TrackLabel(path string) string {
	fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	file, err := os.Open(path)
	if err != nil {
		return fallback
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		return fallback
	}

	title := strings.TrimSpace(meta.Title())
	artist := strings.TrimSpace(meta.Artist())
	switch {
	case title != "" && artist != "":
		return artist + " - " + title
	case title != "":
		return title
	default:
		return fallback
	}
}
