package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-audio/internal/model"
)

func TestGate_OpenClose(t *testing.T) {
	g := NewGate()
	assert.True(t, g.IsOpen())
	require.NoError(t, g.Wait(context.Background()))

	g.Close()
	g.Close()
	assert.False(t, g.IsOpen())

	released := make(chan error, 1)
	go func() { released <- g.Wait(context.Background()) }()

	select {
	case <-released:
		t.Fatal("wait returned while the gate was closed")
	case <-time.After(50 * time.Millisecond):
	}

	g.Open()
	g.Open()
	select {
	case err := <-released:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait not released by Open")
	}
}

func TestGate_WaitHonoursContext(t *testing.T) {
	g := NewGate()
	g.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
}

func TestState_PauseResume(t *testing.T) {
	s := NewState()
	assert.False(t, s.Pause(), "idle jobs cannot pause")
	assert.False(t, s.Resume())

	require.True(t, s.transition(model.PhaseRunning))
	require.True(t, s.Pause())
	assert.Equal(t, model.PhasePaused, s.Phase())
	assert.False(t, s.Gate().IsOpen())
	assert.False(t, s.Pause())

	require.True(t, s.Resume())
	assert.Equal(t, model.PhaseRunning, s.Phase())
	assert.True(t, s.Gate().IsOpen())
	assert.False(t, s.Resume())
}

func TestState_PauseRefusedAfterFetch(t *testing.T) {
	s := NewState()
	require.True(t, s.transition(model.PhaseRunning))
	assert.Equal(t, model.PhaseRunning, s.finishFetch())
	assert.False(t, s.Pause())
}

func TestState_CancelForcesGateOpen(t *testing.T) {
	tests := []struct {
		name    string
		request func(*State)
		now     bool
		after   bool
	}{
		{"cancel now", (*State).RequestCancelNow, true, false},
		{"cancel after current", (*State).RequestCancelAfterCurrent, false, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := NewState()
			require.True(t, s.transition(model.PhaseRunning))
			require.True(t, s.Pause())

			test.request(s)

			assert.True(t, s.Gate().IsOpen())
			assert.Equal(t, model.PhaseRunning, s.Phase())
			assert.Equal(t, test.now, s.CancelNow())
			assert.Equal(t, test.after, s.CancelAfterCurrent())
			assert.True(t, s.Cancelling())
			assert.False(t, s.Pause(), "pause is refused while cancelling")
		})
	}
}

func TestState_ForceOpenIfCancelling(t *testing.T) {
	s := NewState()
	require.True(t, s.transition(model.PhaseRunning))
	require.True(t, s.Pause())

	s.ForceOpenIfCancelling()
	assert.False(t, s.Gate().IsOpen(), "no cancellation pending")

	s.cancelNow.Store(true)
	s.ForceOpenIfCancelling()
	assert.True(t, s.Gate().IsOpen())
}

func TestState_PromoteCancelAfterCurrent(t *testing.T) {
	s := NewState()
	assert.False(t, s.PromoteCancelAfterCurrent())
	assert.False(t, s.CancelNow())

	s.RequestCancelAfterCurrent()
	assert.True(t, s.PromoteCancelAfterCurrent())
	assert.True(t, s.CancelNow())

	s.ClearCancelAfterCurrent()
	assert.False(t, s.CancelAfterCurrent())
	assert.True(t, s.CancelNow())
}

func TestState_CancelledTitles(t *testing.T) {
	s := NewState()
	s.MarkTitleCancelled("")
	s.MarkTitleCancelled("B")
	s.MarkTitleCancelled("B")

	assert.True(t, s.IsTitleCancelled("B"))
	assert.False(t, s.IsTitleCancelled("A"))
	assert.Equal(t, []string{"B"}, s.CancelledTitles())

	s.SetKeepAfterCancel(true)
	assert.True(t, s.KeepAfterCancel())
}

func TestHooks_Chain(t *testing.T) {
	var order []string
	first := Hooks{Status: func(s string) { order = append(order, "first:"+s) }}
	second := Hooks{
		Status:   func(s string) { order = append(order, "second:"+s) },
		Progress: func(p float64, _, _ int) { order = append(order, "progress") },
	}

	chained := first.Chain(second)
	chained.Status("x")
	chained.Progress(10, 1, 2)
	chained.Log("nobody listens")

	assert.Equal(t, []string{"first:x", "second:x", "progress"}, order)
}

func TestTracker_Snapshot(t *testing.T) {
	dir := t.TempDir()
	c := newTestController(t, testJob(dir), newScriptedFetcher("Song"), Deps{})
	tracker := NewTracker(c)
	c.AttachHooks(tracker.Hooks())

	before := tracker.Snapshot()
	assert.Equal(t, model.PhaseIdle, before.Phase)
	assert.Equal(t, c.ID(), before.JobID)

	require.Equal(t, model.PhaseCompleted, c.Start(context.Background()))

	snap := tracker.Snapshot()
	assert.Equal(t, model.PhaseCompleted, snap.Phase)
	assert.Equal(t, StatusDone, snap.Status)
	assert.Equal(t, 100.0, snap.Percent)
	assert.Equal(t, "Song", snap.GetDisplayTitle())
	assert.Len(t, snap.Files, 1)
	assert.Empty(t, snap.LastError)
}
