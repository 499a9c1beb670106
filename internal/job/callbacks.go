package job

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ytget/yt-audio/internal/fetch"
	"github.com/ytget/yt-audio/internal/model"
	"github.com/ytget/yt-audio/internal/platform"
)

// callbacks adapts fetcher events to the controller. Every method runs on the
// fetch goroutine, so blocking here stalls the transfer itself.
type callbacks struct {
	c *Controller
}

var _ fetch.Handler = (*callbacks)(nil)

// OnProgress registers every path the event names, waits at the gate and
// forwards the percentage. A cancel-now request aborts the transfer.
func (h *callbacks) OnProgress(ev fetch.ProgressEvent) error {
	c := h.c
	for _, path := range progressPaths(ev) {
		c.registry.Add(path)
	}

	c.state.ForceOpenIfCancelling()
	if err := c.state.Gate().Wait(c.ctx); err != nil {
		return fmt.Errorf("%w: %v", fetch.ErrCancelled, err)
	}
	if c.state.CancelNow() {
		return fetch.ErrCancelled
	}

	if ev.Status == fetch.StatusDownloading {
		if percent, ok := ev.Percent(); ok {
			c.progress(percent, ev.PlaylistIndex, ev.PlaylistCount)
		}
	}
	return nil
}

// OnPostprocess registers the finished output and its siblings, then settles a
// pending cancel-after-current request for the item.
func (h *callbacks) OnPostprocess(ev fetch.PostprocessEvent) error {
	c := h.c
	if ev.Status != fetch.StatusFinished {
		return nil
	}
	path := ev.Path()
	if path == "" {
		return nil
	}

	abs := c.registry.Add(path)
	finished := []string{abs}
	original := originalSibling(abs)
	if c.job.KeepOriginal && original != abs && platform.FileExists(original) {
		finished = append(finished, c.registry.Add(original))
	}
	if found := c.registry.ScanIntermediates(abs); len(found) > 0 {
		c.logger.Debug("registered intermediates", slog.Int("count", len(found)), slog.String("path", abs))
	}

	// With a pipeline the files only reach their final place after the move
	if c.pipeline == nil {
		for _, p := range finished {
			c.fileFinished(p)
		}
	}

	if c.state.PromoteCancelAfterCurrent() {
		h.settleCancelled(abs, ev.Title)
		c.state.ClearCancelAfterCurrent()
		return fetch.ErrCancelled
	}
	return nil
}

// settleCancelled asks whether the item finished under cancel-after-current is
// kept. Kept files are frozen; discarded ones are scheduled for the purge.
func (h *callbacks) settleCancelled(abs, title string) {
	c := h.c
	keep := c.confirmKeep(abs)
	c.state.SetKeepAfterCancel(keep)

	paths := []string{abs, originalSibling(abs)}
	if keep {
		for _, p := range paths {
			c.registry.Block(p)
		}
		c.log("Kept after cancellation: " + filepath.Base(abs))
		return
	}

	discard := append(paths, c.registry.Siblings(abs)...)
	discard = append(discard, c.registry.ScanIntermediates(abs)...)
	for _, p := range discard {
		c.registry.MarkForDeletion(p)
	}
	if c.pipeline != nil {
		// the staged file must never be promoted onto its final location
		final := c.pipeline.FinalPathFor(abs)
		c.registry.Block(abs)
		c.registry.Block(final)
		c.registry.Block(originalSibling(final))
	}
	c.state.MarkTitleCancelled(title)
	c.log("Discarded after cancellation: " + filepath.Base(abs))
}

// progressPaths lists the paths a progress event reveals: the main output,
// the temporary .part file and every per-stream file with its .part twin.
func progressPaths(ev fetch.ProgressEvent) []string {
	var out []string
	add := func(p string) {
		if p != "" {
			out = append(out, p)
		}
	}
	add(ev.MainPath())
	add(ev.TmpFilename)
	for _, f := range ev.StreamFiles {
		add(f)
		if !strings.HasSuffix(f, ".part") {
			add(f + ".part")
		}
	}
	return out
}

// originalSibling returns the merged-container path next to an audio output
func originalSibling(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + model.OriginalContainerExt
}
