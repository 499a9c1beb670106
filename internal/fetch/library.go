package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/ytdlp/types"
	"github.com/ytget/ytdlp/v2"

	"github.com/ytget/yt-audio/internal/model"
)

// Library planner constants
const (
	DefaultLibraryTimeout   = 60 * time.Second
	PlaylistParam           = "list"
	YouTubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

// LibraryPlanner lists YouTube playlist items with the pure-Go ytdlp library.
// The library exposes no playlist title, so its plans leave Title empty and
// the controller skips the already-downloaded check for them.
type LibraryPlanner struct {
	timeout time.Duration
}

// NewLibraryPlanner creates a planner with the default timeout
func NewLibraryPlanner() *LibraryPlanner {
	return &LibraryPlanner{timeout: DefaultLibraryTimeout}
}

// SetTimeout sets the timeout for listing operations
func (l *LibraryPlanner) SetTimeout(timeout time.Duration) {
	l.timeout = timeout
}

// Plan lists every item of the playlist referenced by rawURL
func (l *LibraryPlanner) Plan(ctx context.Context, rawURL string) (*model.Plan, error) {
	playlistID := ExtractPlaylistID(rawURL)
	if playlistID == "" {
		return nil, fmt.Errorf("could not extract playlist ID from URL: %s", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	items, err := ytdlp.New().GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	return planFromItems(rawURL, playlistID, items), nil
}

func planFromItems(rawURL, playlistID string, items []types.PlaylistItem) *model.Plan {
	plan := model.NewPlan(rawURL)
	plan.ID = playlistID
	plan.IsPlaylist = true
	for _, it := range items {
		plan.AddItem(&model.PlanItem{
			ID:    it.VideoID,
			Title: it.Title,
			URL:   fmt.Sprintf(YouTubeVideoURLTemplate, it.VideoID),
			Index: it.Index,
		})
	}
	return plan
}

// ExtractPlaylistID returns the list= query value of a playlist URL
func ExtractPlaylistID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Query().Get(PlaylistParam)
}
