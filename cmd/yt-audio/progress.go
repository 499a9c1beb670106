package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ytget/yt-audio/internal/job"
)

// progressRenderer prints job hooks to the terminal. With a bar enabled the
// percentage is drawn in place; otherwise only status lines are printed.
type progressRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	showBar bool
	bar     *progressbar.ProgressBar
	last    string
}

func newProgressRenderer(out io.Writer, showBar bool) *progressRenderer {
	return &progressRenderer{out: out, showBar: showBar}
}

func (r *progressRenderer) hooks() job.Hooks {
	return job.Hooks{
		Progress: r.progress,
		Status: func(text string) {
			r.println(text)
		},
		FileFinished: func(path string) {
			r.println("Saved: " + filepath.Base(path))
		},
		Error: func(message string) {
			r.println("Error: " + message)
		},
	}
}

func (r *progressRenderer) progress(percent float64, index, count int) {
	if !r.showBar {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	desc := "Downloading"
	if count > 0 {
		desc = fmt.Sprintf("Downloading [%d/%d]", index, count)
	}
	if r.bar == nil {
		r.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(r.out),
			progressbar.OptionSetDescription(desc),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	} else if desc != r.last {
		r.bar.Describe(desc)
	}
	r.last = desc
	_ = r.bar.Set(int(percent))
}

func (r *progressRenderer) println(text string) {
	if text == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_ = r.bar.Clear()
	}
	fmt.Fprintln(r.out, text)
}

// finish removes the bar so later output starts on a clean line
func (r *progressRenderer) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}
}
