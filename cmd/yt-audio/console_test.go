package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-audio/internal/fetch"
	"github.com/ytget/yt-audio/internal/model"
)

type noopFetcher struct{}

func (noopFetcher) Plan(_ context.Context, opts fetch.Options) (*model.Plan, error) {
	return model.NewPlan(opts.URL), nil
}

func (noopFetcher) Run(context.Context, fetch.Options, *model.Plan, fetch.Handler) error {
	return nil
}

type fakeControls struct {
	mu       sync.Mutex
	calls    []string
	canPause bool
}

func (f *fakeControls) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeControls) Pause() bool             { f.record("pause"); return f.canPause }
func (f *fakeControls) Resume() bool            { f.record("resume"); return true }
func (f *fakeControls) Cancel()                 { f.record("cancel") }
func (f *fakeControls) CancelAfterCurrentItem() { f.record("after") }
func (f *fakeControls) Phase() model.Phase      { return model.PhaseRunning }

// syncBuffer is written by the console goroutines and read by the test
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConsole_DispatchesCommands(t *testing.T) {
	var out syncBuffer
	ctl := &fakeControls{}
	con := newConsole(strings.NewReader("p\nR\n\nc\nafter\ns\nzap\n"), &out)

	con.run(context.Background(), ctl)

	assert.Equal(t, []string{"pause", "resume", "cancel", "after"}, ctl.calls)
	text := out.String()
	assert.Contains(t, text, "Cannot pause now")
	assert.Contains(t, text, "Phase: Running")
	assert.Contains(t, text, `Unknown command "zap"`)
}

func TestConsole_ConfirmKeepReadsAnswer(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"n", false},
		{"yes", true},
		{"", true},
	}

	for _, test := range tests {
		t.Run("answer "+test.answer, func(t *testing.T) {
			r, w := io.Pipe()
			defer w.Close()

			var out syncBuffer
			ctl := &fakeControls{}
			con := newConsole(r, &out)
			go con.run(context.Background(), ctl)

			result := make(chan bool, 1)
			go func() { result <- con.ConfirmKeep(context.Background(), "/music/Song.mp3") }()

			require.Eventually(t, func() bool {
				return strings.Contains(out.String(), "Keep Song.mp3?")
			}, time.Second, 5*time.Millisecond)
			_, err := io.WriteString(w, test.answer+"\n")
			require.NoError(t, err)

			select {
			case got := <-result:
				assert.Equal(t, test.want, got)
			case <-time.After(time.Second):
				t.Fatal("no answer")
			}
			assert.Empty(t, ctl.calls, "the answer is not dispatched as a command")
		})
	}
}

func TestConsole_ConfirmKeepDefaultsWithoutInput(t *testing.T) {
	con := newConsole(strings.NewReader(""), io.Discard)
	con.run(context.Background(), &fakeControls{})
	assert.True(t, con.ConfirmKeep(context.Background(), "/music/Song.mp3"))

	r, w := io.Pipe()
	defer w.Close()
	pending := newConsole(r, io.Discard)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.True(t, pending.ConfirmKeep(ctx, "/music/Song.mp3"))
}

func TestParseYes(t *testing.T) {
	assert.True(t, parseYes("Y", false))
	assert.False(t, parseYes(" no ", true))
	assert.True(t, parseYes("whatever", true))
	assert.False(t, parseYes("", false))
}
