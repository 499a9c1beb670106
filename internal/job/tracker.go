package job

import (
	"sync"
	"time"

	"github.com/ytget/yt-audio/internal/model"
)

// Tracker folds hook calls into a snapshot of the job. Front ends read the
// snapshot instead of keeping their own copy of the hook stream.
type Tracker struct {
	mu       sync.RWMutex
	snapshot model.Snapshot
	phase    func() model.Phase
	now      func() time.Time
}

// NewTracker creates a tracker for the controller's job
func NewTracker(c *Controller) *Tracker {
	t := &Tracker{
		snapshot: model.Snapshot{
			JobID: c.ID(),
			URL:   c.Job().URL,
			Phase: c.Phase(),
		},
		phase: c.Phase,
		now:   time.Now,
	}
	t.snapshot.UpdatedAt = t.now()
	return t
}

// Hooks returns hooks that update the snapshot
func (t *Tracker) Hooks() Hooks {
	return Hooks{
		Progress: func(percent float64, index, count int) {
			t.update(func(s *model.Snapshot) {
				s.Percent = percent
				s.Index = index
				s.Count = count
			})
		},
		Status: func(text string) {
			t.update(func(s *model.Snapshot) {
				s.Status = text
			})
		},
		FileFinished: func(path string) {
			t.update(func(s *model.Snapshot) {
				s.LastFile = path
				s.Files = append(s.Files, path)
			})
		},
		Error: func(message string) {
			t.update(func(s *model.Snapshot) {
				s.LastError = message
			})
		},
	}
}

// Snapshot returns a copy of the current view with the live phase
func (t *Tracker) Snapshot() model.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := t.snapshot.Clone()
	if t.phase != nil {
		out.Phase = t.phase()
	}
	return out
}

func (t *Tracker) update(fn func(*model.Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.snapshot)
	t.snapshot.UpdatedAt = t.now()
}
