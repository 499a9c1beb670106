package normalize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNormalizer struct {
	calls []string
	lufs  []float64
	fail  map[string]error
}

func (f *fakeNormalizer) Normalize(_ context.Context, path string, targetLUFS float64) error {
	f.calls = append(f.calls, filepath.Base(path))
	f.lufs = append(f.lufs, targetLUFS)
	if err, ok := f.fail[filepath.Base(path)]; ok {
		return err
	}
	return os.WriteFile(path, []byte("normalized"), 0o644)
}

type blockSet map[string]bool

func (b blockSet) IsBlocked(path string) bool { return b[path] }

type recorder struct {
	statuses []string
	finished []string
	errors   []string
	logs     []string
}

func (r *recorder) events() Events {
	return Events{
		Status:       func(s string) { r.statuses = append(r.statuses, s) },
		FileFinished: func(p string) { r.finished = append(r.finished, p) },
		Error:        func(m string) { r.errors = append(r.errors, m) },
		Log:          func(l string) { r.logs = append(r.logs, l) },
	}
}

func stage(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("raw"), 0o644))
	return path
}

func newTestPipeline(t *testing.T, out string) (*Pipeline, *fakeNormalizer, *recorder) {
	t.Helper()
	norm := &fakeNormalizer{}
	rec := &recorder{}
	return &Pipeline{
		StagingDir:  StagingDir(out),
		OutputDir:   out,
		AudioExt:    ".mp3",
		OriginalExt: ".mp4",
		TargetLUFS:  DefaultTargetLUFS,
		Normalizer:  norm,
		Blocked:     blockSet{},
		Events:      rec.events(),
	}, norm, rec
}

func TestPipeline_FinalPathFor(t *testing.T) {
	out := t.TempDir()
	p, _, _ := newTestPipeline(t, out)

	assert.Equal(t, filepath.Join(out, "Song.mp3"), p.FinalPathFor(filepath.Join(out, StagingDirName, "Song.mp3")))
	assert.Equal(t, filepath.Join(out, "Mix", "Song.mp3"), p.FinalPathFor(filepath.Join(out, StagingDirName, "Mix", "Song.mp3")))
	assert.Equal(t, filepath.Join(out, "Elsewhere.mp3"), p.FinalPathFor("/somewhere/else/Elsewhere.mp3"))
}

func TestPipeline_CollectFiltersByExtension(t *testing.T) {
	out := t.TempDir()
	p, _, _ := newTestPipeline(t, out)
	staging := p.StagingDir

	stage(t, filepath.Join(staging, "A.mp3"))
	stage(t, filepath.Join(staging, "A.mp4"))
	stage(t, filepath.Join(staging, "A.f251.webm"))
	stage(t, filepath.Join(staging, "A.f137.mp4"))
	stage(t, filepath.Join(staging, "B.normalized.tmp.mp3"))

	items, err := p.Collect()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, filepath.Join(out, "A.mp3"), items[0].Final)

	p.KeepOriginal = true
	items, err = p.Collect()
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestPipeline_CollectMissingStaging(t *testing.T) {
	p, _, _ := newTestPipeline(t, t.TempDir())
	items, err := p.Collect()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPipeline_RunSkipsBlockedFinal(t *testing.T) {
	out := t.TempDir()
	p, norm, rec := newTestPipeline(t, out)

	kept := stage(t, filepath.Join(p.StagingDir, "Kept.mp3"))
	cancelled := stage(t, filepath.Join(p.StagingDir, "Cancelled.mp3"))
	p.Blocked = blockSet{p.FinalPathFor(cancelled): true}

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	keptFinal := filepath.Join(out, "Kept.mp3")
	cancelledFinal := filepath.Join(out, "Cancelled.mp3")

	assert.FileExists(t, keptFinal)
	assert.NoFileExists(t, cancelledFinal)
	assert.NoFileExists(t, kept)
	assert.NoFileExists(t, cancelled, "blocked staged file is discarded")

	assert.Equal(t, []string{"Kept.mp3"}, norm.calls)
	assert.Equal(t, []string{keptFinal}, rec.finished)
	assert.Equal(t, []string{keptFinal}, result.Moved)
	assert.Equal(t, []string{cancelled}, result.Discarded)

	data, err := os.ReadFile(keptFinal)
	require.NoError(t, err)
	assert.Equal(t, "normalized", string(data))
}

func TestPipeline_RunPlaylistLayoutAndStatus(t *testing.T) {
	out := t.TempDir()
	p, norm, rec := newTestPipeline(t, out)
	p.KeepOriginal = true

	stage(t, filepath.Join(p.StagingDir, "Road_Trip", "One.mp3"))
	stage(t, filepath.Join(p.StagingDir, "Road_Trip", "One.mp4"))
	stage(t, filepath.Join(p.StagingDir, "Road_Trip", "Two.mp3"))

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(out, "Road_Trip", "One.mp3"))
	assert.FileExists(t, filepath.Join(out, "Road_Trip", "One.mp4"))
	assert.FileExists(t, filepath.Join(out, "Road_Trip", "Two.mp3"))
	assert.Len(t, result.Moved, 3)

	// Only the target format is normalized and counted
	assert.ElementsMatch(t, []string{"One.mp3", "Two.mp3"}, norm.calls)
	assert.Equal(t, []string{"Normalizing audio (1/2)", "Normalizing audio (2/2)"}, rec.statuses)
	assert.Len(t, rec.finished, 3)
	for _, lufs := range norm.lufs {
		assert.Equal(t, -14.0, lufs)
	}
}

func TestPipeline_RunNormalizeFailureContinues(t *testing.T) {
	out := t.TempDir()
	p, norm, rec := newTestPipeline(t, out)
	norm.fail = map[string]error{"Bad.mp3": errors.New("loudnorm exploded")}

	stage(t, filepath.Join(p.StagingDir, "Bad.mp3"))
	stage(t, filepath.Join(p.StagingDir, "Good.mp3"))

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "loudnorm exploded")
	assert.Len(t, result.Failed, 1)

	// The un-normalized file is still promoted
	assert.FileExists(t, filepath.Join(out, "Bad.mp3"))
	assert.FileExists(t, filepath.Join(out, "Good.mp3"))
	assert.Len(t, rec.finished, 2)
}

func TestPipeline_RunNothingStaged(t *testing.T) {
	p, norm, rec := newTestPipeline(t, t.TempDir())

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Moved)
	assert.Empty(t, norm.calls)
	assert.Equal(t, []string{"No files to normalize"}, rec.logs)
}

func TestPipeline_RemoveStaging(t *testing.T) {
	out := t.TempDir()
	p, _, _ := newTestPipeline(t, out)
	stage(t, filepath.Join(p.StagingDir, "left", "over.f251.webm"))

	require.NoError(t, p.RemoveStaging())
	assert.NoDirExists(t, p.StagingDir)
	assert.DirExists(t, out)
}

func TestTrackLabelFallsBackToFilename(t *testing.T) {
	path := stage(t, filepath.Join(t.TempDir(), "No_Tags.mp3"))
	assert.Equal(t, "No_Tags", TrackLabel(path))
	assert.Equal(t, "missing", TrackLabel(filepath.Join(t.TempDir(), "missing.mp3")))
}

func TestBuildArgs(t *testing.T) {
	f := NewFFmpeg()
	args := f.BuildArgs("/in.mp3", "/in.normalized.tmp.mp3", -14)

	expectedArgs := []string{
		"-y",
		"-i", "/in.mp3",
		"-af", "loudnorm=I=-14:TP=-1.5:LRA=11",
		"-map_metadata", "0",
		"-progress", "pipe:1",
		"-nostats",
		"/in.normalized.tmp.mp3",
	}

	if len(args) != len(expectedArgs) {
		t.Fatalf("Expected %d args, got %d", len(expectedArgs), len(args))
	}
	for i, expected := range expectedArgs {
		if args[i] != expected {
			t.Errorf("Arg %d: expected %s, got %s", i, expected, args[i])
		}
	}
}

func TestLoudnormFilter(t *testing.T) {
	assert.Equal(t, "loudnorm=I=-16.5:TP=-2:LRA=7", LoudnormFilter(-16.5, -2, 7))

	f := NewFFmpeg(WithLoudnessRange(-1, 9))
	args := f.BuildArgs("a.m4a", "b.m4a", -23)
	assert.Contains(t, args, "loudnorm=I=-23:TP=-1:LRA=9")
}

func TestTempPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/music/Song.mp3", "/music/Song.normalized.tmp.mp3"},
		{"/music/Song.v2.flac", "/music/Song.v2.normalized.tmp.flac"},
		{"noext", "noext.normalized.tmp"},
	}
	for _, test := range tests {
		if got := TempPath(test.input); got != test.expected {
			t.Errorf("TempPath(%s) = %s, expected %s", test.input, got, test.expected)
		}
	}
}

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		line     string
		total    float64
		expected float64
		ok       bool
	}{
		{"out_time_us=5000000", 10, 0.5, true},
		{"out_time_us=20000000", 10, 1.0, true},
		{"  out_time_us=0  ", 10, 0, true},
		{"out_time_us=abc", 10, 0, false},
		{"frame=12", 10, 0, false},
		{"out_time_us=5000000", 0, 0, false},
	}
	for _, test := range tests {
		got, ok := ParseProgressLine(test.line, test.total)
		if ok != test.ok || got != test.expected {
			t.Errorf("ParseProgressLine(%q, %v) = %v, %v; expected %v, %v", test.line, test.total, got, ok, test.expected, test.ok)
		}
	}
}

func TestFFmpegNormalize_NonExistentFile(t *testing.T) {
	f := NewFFmpeg()
	err := f.Normalize(context.Background(), filepath.Join(t.TempDir(), "nope.mp3"), DefaultTargetLUFS)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "does not exist"))
}

func TestWithBinaryDirectory(t *testing.T) {
	dir := t.TempDir()
	f := NewFFmpeg(WithBinary(dir))
	assert.Equal(t, filepath.Join(dir, FFmpegCommand), f.binary)
	assert.Equal(t, filepath.Join(dir, FFprobeCommand), f.probeBinary)

	f = NewFFmpeg(WithBinary("/opt/bin/ffmpeg"))
	assert.Equal(t, "/opt/bin/ffmpeg", f.binary)
	assert.Equal(t, "/opt/bin/ffprobe", f.probeBinary)
}
