package job

import (
	"sync"
	"sync/atomic"

	"github.com/ytget/yt-audio/internal/model"
)

// State is the mutable, concurrently shared part of a job: lifecycle phase,
// the cooperative gate and the cancellation flags. Control commands arrive on
// other goroutines and only ever touch this object.
type State struct {
	mu        sync.Mutex
	phase     model.Phase
	gate      *Gate
	fetchDone bool

	cancelNow          atomic.Bool
	cancelAfterCurrent atomic.Bool
	keepAfterCancel    atomic.Bool

	titlesMu        sync.Mutex
	cancelledTitles map[string]struct{}
}

// NewState returns an idle state with an open gate
func NewState() *State {
	return &State{
		phase:           model.PhaseIdle,
		gate:            NewGate(),
		cancelledTitles: make(map[string]struct{}),
	}
}

// Phase returns the current lifecycle phase
func (s *State) Phase() model.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// transition moves to next when the phase machine allows it
func (s *State) transition(next model.Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.phase.CanTransition(next) {
		return false
	}
	s.phase = next
	return true
}

// Pause closes the gate. It refuses unless the job is running with no
// cancellation pending, so the gate is never closed while a cancel flag is set.
func (s *State) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != model.PhaseRunning || s.fetchDone || s.cancelNow.Load() || s.cancelAfterCurrent.Load() {
		return false
	}
	s.phase = model.PhasePaused
	s.gate.Close()
	return true
}

// finishFetch marks the end of the fetch phase and returns the phase at that
// moment. Pause is refused afterwards.
func (s *State) finishFetch() model.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchDone = true
	return s.phase
}

// Resume reopens the gate of a paused job
func (s *State) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != model.PhasePaused {
		return false
	}
	s.phase = model.PhaseRunning
	s.gate.Open()
	return true
}

// RequestCancelNow sets cancel-now and force-opens the gate
func (s *State) RequestCancelNow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelNow.Store(true)
	s.unpauseLocked()
}

// RequestCancelAfterCurrent sets cancel-after-current and force-opens the gate
func (s *State) RequestCancelAfterCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAfterCurrent.Store(true)
	s.unpauseLocked()
}

// unpauseLocked opens the gate; a paused job goes back to running so the
// cancellation can unwind
func (s *State) unpauseLocked() {
	if s.phase == model.PhasePaused {
		s.phase = model.PhaseRunning
	}
	s.gate.Open()
}

// ForceOpenIfCancelling opens the gate when any cancel flag is set
func (s *State) ForceOpenIfCancelling() {
	if !s.CancelNow() && !s.CancelAfterCurrent() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unpauseLocked()
}

// PromoteCancelAfterCurrent turns a pending cancel-after-current into
// cancel-now. It reports whether a promotion happened.
func (s *State) PromoteCancelAfterCurrent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cancelAfterCurrent.Load() {
		return false
	}
	s.cancelNow.Store(true)
	return true
}

// ClearCancelAfterCurrent resets the single-shot cancel-after-current flag
func (s *State) ClearCancelAfterCurrent() {
	s.cancelAfterCurrent.Store(false)
}

// CancelNow reports the cancel-now flag
func (s *State) CancelNow() bool {
	return s.cancelNow.Load()
}

// CancelAfterCurrent reports the cancel-after-current flag
func (s *State) CancelAfterCurrent() bool {
	return s.cancelAfterCurrent.Load()
}

// Cancelling reports whether any cancellation was requested
func (s *State) Cancelling() bool {
	return s.CancelNow() || s.CancelAfterCurrent()
}

// SetKeepAfterCancel records the keep/discard decision for the item that was
// in flight when cancellation hit
func (s *State) SetKeepAfterCancel(keep bool) {
	s.keepAfterCancel.Store(keep)
}

// KeepAfterCancel returns the recorded keep/discard decision
func (s *State) KeepAfterCancel() bool {
	return s.keepAfterCancel.Load()
}

// MarkTitleCancelled records a title whose files must be deleted
func (s *State) MarkTitleCancelled(title string) {
	if title == "" {
		return
	}
	s.titlesMu.Lock()
	defer s.titlesMu.Unlock()
	s.cancelledTitles[title] = struct{}{}
}

// IsTitleCancelled reports whether a title was marked for deletion
func (s *State) IsTitleCancelled(title string) bool {
	s.titlesMu.Lock()
	defer s.titlesMu.Unlock()
	_, ok := s.cancelledTitles[title]
	return ok
}

// CancelledTitles returns the titles marked for deletion
func (s *State) CancelledTitles() []string {
	s.titlesMu.Lock()
	defer s.titlesMu.Unlock()
	out := make([]string, 0, len(s.cancelledTitles))
	for title := range s.cancelledTitles {
		out = append(out, title)
	}
	return out
}

// Gate returns the cooperative gate
func (s *State) Gate() *Gate {
	return s.gate
}
