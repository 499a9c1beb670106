package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-audio/internal/fetch"
	"github.com/ytget/yt-audio/internal/model"
	"github.com/ytget/yt-audio/internal/registry"
)

// scriptedFetcher imitates yt-dlp on the local filesystem: each item writes
// two per-stream intermediates, reports progress for them, then writes the
// extracted audio (and the merged container when keeping video) and fires the
// post-processing event.
type scriptedFetcher struct {
	playlistTitle string
	titles        []string
	failAt        int // 1-based item index that fails with a transfer error

	mu        sync.Mutex
	planCalls int
	runCalls  int
	runPlans  [][]int
	written   []string
}

func newScriptedFetcher(titles ...string) *scriptedFetcher {
	return &scriptedFetcher{playlistTitle: "Mix", titles: titles}
}

func (f *scriptedFetcher) Plan(_ context.Context, opts fetch.Options) (*model.Plan, error) {
	f.mu.Lock()
	f.planCalls++
	f.mu.Unlock()

	plan := model.NewPlan(opts.URL)
	plan.IsPlaylist = opts.Playlist
	if opts.Playlist {
		plan.Title = f.playlistTitle
	}
	for _, title := range f.titles {
		plan.AddItem(&model.PlanItem{ID: "id-" + title, Title: title})
	}
	return plan, nil
}

func (f *scriptedFetcher) Run(ctx context.Context, opts fetch.Options, plan *model.Plan, h fetch.Handler) error {
	f.mu.Lock()
	f.runCalls++
	f.runPlans = append(f.runPlans, plan.Indices())
	f.mu.Unlock()

	for _, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.runItem(opts, plan, item, h); err != nil {
			return err
		}
	}
	return nil
}

func (f *scriptedFetcher) runItem(opts fetch.Options, plan *model.Plan, item *model.PlanItem, h fetch.Handler) error {
	count := plan.Len()
	if opts.Playlist {
		count = len(f.titles)
	}
	base := f.expand(opts.OutputTemplate, item)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	streams := []string{stem + ".f137.mp4", stem + ".f251.webm"}
	for _, stream := range streams {
		if err := f.write(stream); err != nil {
			return err
		}
		for _, downloaded := range []float64{50, 100} {
			ev := fetch.ProgressEvent{
				Status:          fetch.StatusDownloading,
				Filename:        stream,
				TmpFilename:     stream + ".part",
				DownloadedBytes: downloaded,
				TotalBytes:      100,
				Title:           item.Title,
				PlaylistIndex:   item.Index,
				PlaylistCount:   count,
				StreamFiles:     streams,
			}
			if err := h.OnProgress(ev); err != nil {
				return fmt.Errorf("aborted: %w", err)
			}
		}
	}

	if item.Index == f.failAt {
		return errors.New("HTTP Error 403: Forbidden")
	}

	audio := stem + "." + opts.AudioFormat
	if err := f.write(audio); err != nil {
		return err
	}
	if opts.KeepVideo {
		if err := f.write(stem + ".mp4"); err != nil {
			return err
		}
	}

	done := fetch.PostprocessEvent{
		Status:        fetch.StatusFinished,
		Filepath:      audio,
		Title:         item.Title,
		PlaylistIndex: item.Index,
		PlaylistCount: count,
	}
	if err := h.OnPostprocess(done); err != nil {
		return fmt.Errorf("aborted: %w", err)
	}
	return nil
}

func (f *scriptedFetcher) expand(template string, item *model.PlanItem) string {
	return strings.NewReplacer(
		"%(playlist_title|playlist)s", f.playlistTitle,
		"%(title|untitled)s", item.Title,
		"%(ext)s", "tmp",
	).Replace(template)
}

func (f *scriptedFetcher) write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f.mu.Lock()
	f.written = append(f.written, path)
	f.mu.Unlock()
	return os.WriteFile(path, []byte("media"), 0o644)
}

func (f *scriptedFetcher) calls() (plans, runs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.planCalls, f.runCalls
}

type fakeNormalizer struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (n *fakeNormalizer) Normalize(_ context.Context, path string, _ float64) error {
	n.mu.Lock()
	n.calls = append(n.calls, filepath.Base(path))
	n.mu.Unlock()
	if n.fail[filepath.Base(path)] {
		return errors.New("loudnorm failed")
	}
	return os.WriteFile(path, []byte("normalized"), 0o644)
}

// recorder collects hook calls; hooks may fire from more than one goroutine
type recorder struct {
	mu       sync.Mutex
	progress []float64
	statuses []string
	finished []string
	errors   []string
	logs     []string
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		Progress: func(percent float64, _, _ int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress = append(r.progress, percent)
		},
		Status: func(s string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.statuses = append(r.statuses, s)
		},
		FileFinished: func(p string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.finished = append(r.finished, p)
		},
		Error: func(m string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errors = append(r.errors, m)
		},
		Log: func(l string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.logs = append(r.logs, l)
		},
	}
}

func (r *recorder) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func (r *recorder) hasLog(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// instantPurge keeps tests from sleeping through the release wait
var instantPurge = registry.RetryPolicy{Attempts: 1}

func testJob(dir string) model.Job {
	return model.Job{
		URL:       "https://www.youtube.com/watch?v=abc123",
		OutputDir: dir,
		Format:    "mp3",
		Quality:   "192K",
	}
}

func newTestController(t *testing.T, job model.Job, fetcher fetch.Fetcher, deps Deps, opts ...Option) *Controller {
	t.Helper()
	deps.Fetcher = fetcher
	opts = append([]Option{WithRetryPolicy(instantPurge)}, opts...)
	c, err := New(job, deps, opts...)
	require.NoError(t, err)
	return c
}

// listFiles returns every regular file under dir relative to it, sorted
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

// finishFetchSeen reports whether the worker has left the fetch phase
func (s *State) finishFetchSeen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchDone
}
