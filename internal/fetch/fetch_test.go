package fetch

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ytget/ytdlp/types"

	"github.com/ytget/yt-audio/internal/model"
)

func TestOutputTemplate(t *testing.T) {
	assert.Equal(t, filepath.Join("/out", "%(title|untitled)s.%(ext)s"), OutputTemplate("/out", false))
	assert.Equal(t, filepath.Join("/out", "%(playlist_title|playlist)s", "%(title|untitled)s.%(ext)s"), OutputTemplate("/out", true))
}

func TestOptionsForJob(t *testing.T) {
	job := model.Job{URL: "https://example.com/v", OutputDir: "/out", Format: "opus", Quality: "5", Playlist: true, KeepOriginal: true}
	opts := OptionsForJob(job, "/out/temp_normalize", "/opt/ffmpeg")

	assert.Equal(t, job.URL, opts.URL)
	assert.Equal(t, OutputTemplate("/out/temp_normalize", true), opts.OutputTemplate)
	assert.Equal(t, DefaultFormat, opts.Format)
	assert.Equal(t, DefaultMergeFormat, opts.MergeFormat)
	assert.Equal(t, "opus", opts.AudioFormat)
	assert.Equal(t, "5", opts.AudioQuality)
	assert.True(t, opts.Playlist)
	assert.True(t, opts.KeepVideo)
	assert.Equal(t, "/opt/ffmpeg", opts.FFmpegLocation)
}

func TestPlaylistItems(t *testing.T) {
	plan := model.NewPlan("u")
	plan.IsPlaylist = true
	plan.AddItem(&model.PlanItem{Title: "a"})
	plan.AddItem(&model.PlanItem{Title: "b"})
	plan.AddItem(&model.PlanItem{Title: "c"})

	assert.Equal(t, "1,2,3", PlaylistItems(plan))

	filtered := plan.Filter(func(it *model.PlanItem) bool { return it.Title != "b" })
	assert.Equal(t, "1,3", PlaylistItems(filtered))
	assert.Equal(t, "", PlaylistItems(nil))
}

func TestParseProgressLine(t *testing.T) {
	line := "\r" + ProgressPrefix + `{"progress":{"status":"downloading","filename":"/o/Song.f251.webm","tmpfilename":"/o/Song.f251.webm.part","downloaded_bytes":512,"total_bytes":null,"total_bytes_estimate":1024.0},` +
		`"info_filename":"/o/Song.webm","title":"Song","playlist_index":2,"playlist_count":3,"playlist_title":"Mix","stream_files":["/o/Song.f137.mp4",null,"/o/Song.f251.webm"]}`

	ev, ok, err := ParseProgressLine(line)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, StatusDownloading, ev.Status)
	assert.Equal(t, "/o/Song.f251.webm", ev.MainPath())
	assert.Equal(t, "/o/Song.f251.webm.part", ev.TmpFilename)
	assert.Equal(t, "Song", ev.Title)
	assert.Equal(t, 2, ev.PlaylistIndex)
	assert.Equal(t, 3, ev.PlaylistCount)
	assert.Equal(t, "Mix", ev.PlaylistTitle)
	assert.Equal(t, []string{"/o/Song.f137.mp4", "/o/Song.f251.webm"}, ev.StreamFiles)

	percent, known := ev.Percent()
	assert.True(t, known)
	assert.InDelta(t, 50.0, percent, 0.001)
}

func TestParseProgressLine_NullsAndNoise(t *testing.T) {
	ev, ok, err := ParseProgressLine(ProgressPrefix + `{"progress":{"status":"finished","filename":null},"info_filename":"/o/x.webm","title":null,"playlist_index":null,"playlist_count":null,"playlist_title":null,"stream_files":null}`)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/o/x.webm", ev.MainPath())
	assert.Zero(t, ev.PlaylistIndex)
	_, known := ev.Percent()
	assert.False(t, known)

	_, ok, err = ParseProgressLine("[download] Destination: /o/x.webm")
	assert.False(t, ok)
	assert.NoError(t, err)

	_, ok, err = ParseProgressLine(ProgressPrefix + "{broken")
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestProgressEventPercentClamped(t *testing.T) {
	p, ok := ProgressEvent{DownloadedBytes: 3000, TotalBytes: 1000}.Percent()
	assert.True(t, ok)
	assert.Equal(t, 100.0, p)

	p, ok = ProgressEvent{DownloadedBytes: 250, TotalBytes: 1000, TotalBytesEstimate: 5000}.Percent()
	assert.True(t, ok)
	assert.Equal(t, 25.0, p)
}

func TestParsePostprocessLine(t *testing.T) {
	ev, ok, err := ParsePostprocessLine(PostprocessPrefix + `{"filepath":"/o/Song.mp3","filename":"/o/Song.webm","title":"Song","playlist_index":null,"playlist_count":null,"playlist_title":null}`)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusFinished, ev.Status)
	assert.Equal(t, "/o/Song.mp3", ev.Path())
	assert.Equal(t, "Song", ev.Title)

	assert.Equal(t, "/o/a.webm", PostprocessEvent{Filename: "/o/a.webm", InfoFilename: "/o/b"}.Path())
	assert.Equal(t, "/o/b", PostprocessEvent{InfoFilename: "/o/b"}.Path())
}

func TestParsePlan_Playlist(t *testing.T) {
	data := []byte(`{"_type":"playlist","id":"PL1","title":"Road Trip","entries":[
		{"id":"a","title":"One","url":"https://y/a","duration":65},
		{"id":"b","title":"Two","url":"https://y/b","playlist_index":7,"duration":3725.4}
	]}`)

	plan, err := ParsePlan(data, "https://y/list", true)
	require.NoError(t, err)
	assert.True(t, plan.IsPlaylist)
	assert.Equal(t, "Road Trip", plan.Title)
	require.Len(t, plan.Items, 2)
	assert.Equal(t, 1, plan.Items[0].Index)
	assert.Equal(t, 7, plan.Items[1].Index)
	assert.Equal(t, "Road Trip", plan.Items[0].PlaylistTitle)
	assert.Equal(t, "01:05", plan.Items[0].Duration)
	assert.Equal(t, "01:02:05", plan.Items[1].Duration)
}

func TestParsePlan_SingleAndPlaylistDisabled(t *testing.T) {
	plan, err := ParsePlan([]byte(`{"id":"v","title":"Solo","webpage_url":"https://y/v"}`), "https://y/v?x=1", false)
	require.NoError(t, err)
	assert.False(t, plan.IsPlaylist)
	require.Len(t, plan.Items, 1)
	assert.Equal(t, "Solo", plan.Items[0].Title)
	assert.Equal(t, "https://y/v", plan.Items[0].URL)

	plan, err = ParsePlan([]byte(`{"_type":"playlist","id":"PL","title":"T","entries":[{"id":"a","title":"A"}]}`), "u", false)
	require.NoError(t, err)
	assert.False(t, plan.IsPlaylist)
	assert.Len(t, plan.Items, 1)

	_, err = ParsePlan([]byte("not json"), "u", true)
	assert.Error(t, err)
}

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://www.youtube.com/playlist?list=PL123", "PL123"},
		{"https://www.youtube.com/watch?v=abc&list=PL456&index=2", "PL456"},
		{"https://www.youtube.com/watch?v=abc", ""},
		{"::bad", ""},
	}
	for _, test := range tests {
		if got := ExtractPlaylistID(test.url); got != test.expected {
			t.Errorf("ExtractPlaylistID(%s) = %s, expected %s", test.url, got, test.expected)
		}
	}
}

func TestPlanFromItems(t *testing.T) {
	plan := planFromItems("https://y/playlist?list=PL1", "PL1", []types.PlaylistItem{
		{VideoID: "a", Title: "First", Index: 1},
		{VideoID: "b", Title: "Second"},
		{VideoID: "c", Title: "Fifth", Index: 5},
	})

	assert.True(t, plan.IsPlaylist)
	assert.Equal(t, "PL1", plan.ID)
	assert.Empty(t, plan.Title, "the library cannot resolve playlist titles")
	assert.Equal(t, []int{1, 2, 5}, plan.Indices())
	assert.Equal(t, "https://www.youtube.com/watch?v=b", plan.Items[1].URL)
	for _, item := range plan.Items {
		assert.Empty(t, item.PlaylistTitle)
	}
}

func TestFormatDuration(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	assert.Equal(t, "", FormatDuration(nil))
	assert.Equal(t, "", FormatDuration(f(0)))
	assert.Equal(t, "00:59", FormatDuration(f(59)))
	assert.Equal(t, "10:00", FormatDuration(f(600)))
	assert.Equal(t, "02:00:01", FormatDuration(f(7201)))
}

// scriptFetcher returns a fetcher whose yt-dlp invocation is replaced by a
// shell script printing canned output.
func scriptFetcher(t *testing.T, script string) *YTDLP {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	y := NewYTDLP()
	y.command = func(ctx context.Context, _ *ytdlp.Command, _ string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
	return y
}

func writeLines(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.txt")
	var data []byte
	for _, l := range lines {
		data = append(data, l...)
		data = append(data, '\n')
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

type recordingHandler struct {
	progress    []ProgressEvent
	postprocess []PostprocessEvent
	onProgress  func(ProgressEvent) error
}

func (h *recordingHandler) OnProgress(ev ProgressEvent) error {
	h.progress = append(h.progress, ev)
	if h.onProgress != nil {
		return h.onProgress(ev)
	}
	return nil
}

func (h *recordingHandler) OnPostprocess(ev PostprocessEvent) error {
	h.postprocess = append(h.postprocess, ev)
	return nil
}

func TestRun_DispatchesEventsInOrder(t *testing.T) {
	out := writeLines(t,
		"[youtube] Extracting URL",
		ProgressPrefix+`{"progress":{"status":"downloading","filename":"/o/a.webm","downloaded_bytes":1,"total_bytes":2}}`,
		ProgressPrefix+`{"progress":{"status":"finished","filename":"/o/a.webm","downloaded_bytes":2,"total_bytes":2}}`,
		PostprocessPrefix+`{"filepath":"/o/a.mp3","title":"a"}`,
	)
	y := scriptFetcher(t, "cat '"+out+"'; echo 'WARNING: noise' >&2")

	h := &recordingHandler{}
	err := y.Run(context.Background(), Options{URL: "https://x", Format: DefaultFormat, AudioFormat: "mp3"}, nil, h)
	require.NoError(t, err)

	require.Len(t, h.progress, 2)
	assert.Equal(t, StatusDownloading, h.progress[0].Status)
	assert.Equal(t, StatusFinished, h.progress[1].Status)
	require.Len(t, h.postprocess, 1)
	assert.Equal(t, "/o/a.mp3", h.postprocess[0].Path())
}

func TestRun_HandlerCancellationKillsProcess(t *testing.T) {
	out := writeLines(t,
		ProgressPrefix+`{"progress":{"status":"downloading","filename":"/o/a.webm"}}`,
		ProgressPrefix+`{"progress":{"status":"downloading","filename":"/o/a.webm"}}`,
	)
	y := scriptFetcher(t, "cat '"+out+"'; exec sleep 30")

	h := &recordingHandler{onProgress: func(ProgressEvent) error { return ErrCancelled }}

	start := time.Now()
	err := y.Run(context.Background(), Options{URL: "https://x"}, nil, h)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.Len(t, h.progress, 1, "no events are dispatched after cancellation")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRun_ProcessFailure(t *testing.T) {
	y := scriptFetcher(t, "echo 'ERROR: [youtube] abc: Video unavailable' >&2; exit 1")

	err := y.Run(context.Background(), Options{URL: "https://x"}, nil, &recordingHandler{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCancelled))
	assert.Contains(t, err.Error(), "Video unavailable")
}

// stubExecutable writes a fake yt-dlp that records its argv and either dumps
// a plan or replays the given output lines.
func stubExecutable(t *testing.T, lines ...string) (bin, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	dir := t.TempDir()
	out := writeLines(t, lines...)
	argsFile = filepath.Join(dir, "args.txt")
	bin = filepath.Join(dir, "yt-dlp")
	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > '" + argsFile + "'\n" +
		"case \" $* \" in\n" +
		"  *\" --dump-single-json \"*) echo '{\"id\":\"v\",\"title\":\"Solo\"}'; exit 0 ;;\n" +
		"esac\n" +
		"cat '" + out + "'\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, argsFile
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestRun_DefaultCommandBuilder(t *testing.T) {
	bin, argsFile := stubExecutable(t,
		ProgressPrefix+`{"progress":{"status":"downloading","filename":"/o/a.webm","downloaded_bytes":1,"total_bytes":2}}`,
		PostprocessPrefix+`{"filepath":"/o/a.mp3","title":"a"}`,
	)
	y := NewYTDLP(WithExecutable(bin))

	h := &recordingHandler{}
	opts := Options{URL: "https://y/v", Format: DefaultFormat, AudioFormat: "mp3", OutputTemplate: "/o/%(title)s.%(ext)s"}
	require.NoError(t, y.Run(context.Background(), opts, nil, h))

	require.Len(t, h.progress, 1)
	assert.Equal(t, StatusDownloading, h.progress[0].Status)
	require.Len(t, h.postprocess, 1)
	assert.Equal(t, "/o/a.mp3", h.postprocess[0].Path())

	args := readArgs(t, argsFile)
	assert.Equal(t, "https://y/v", args[len(args)-1], "url goes last")
	assert.Contains(t, args, "--newline")
	assert.Contains(t, args, "--no-playlist")
	assert.Contains(t, args, "--extract-audio")
	assert.Contains(t, args, "/o/%(title)s.%(ext)s")
}

func TestPlan_DefaultCommandBuilder(t *testing.T) {
	bin, argsFile := stubExecutable(t)
	y := NewYTDLP(WithExecutable(bin))

	plan, err := y.Plan(context.Background(), Options{URL: "https://y/v"})
	require.NoError(t, err)
	require.Equal(t, 1, plan.Len())
	assert.Equal(t, "Solo", plan.Items[0].Title)

	args := readArgs(t, argsFile)
	assert.Contains(t, args, "--flat-playlist")
	assert.Contains(t, args, "--dump-single-json")
	assert.Equal(t, "https://y/v", args[len(args)-1])
}

func TestNewYTDLP_EmptyExecutableFallsBackToPath(t *testing.T) {
	y := NewYTDLP(WithExecutable(""))
	cmd := y.command(context.Background(), y.base(Options{}), "https://y/v")
	assert.Equal(t, YTDLPCommand, filepath.Base(cmd.Args[0]))
	assert.Equal(t, "https://y/v", cmd.Args[len(cmd.Args)-1])
}

type stubPlanner struct {
	plan *model.Plan
	err  error
}

func (s stubPlanner) Plan(context.Context, string) (*model.Plan, error) {
	return s.plan, s.err
}

func TestPlan_FallbackPlanner(t *testing.T) {
	fallback := model.NewPlan("https://y/playlist?list=PL")
	fallback.IsPlaylist = true
	fallback.AddItem(&model.PlanItem{Title: "From library"})

	y := scriptFetcher(t, "exit 2")
	y.fallback = stubPlanner{plan: fallback}

	plan, err := y.Plan(context.Background(), Options{URL: fallback.URL, Playlist: true})
	require.NoError(t, err)
	assert.Same(t, fallback, plan)

	// Single-item jobs never use the playlist fallback
	_, err = y.Plan(context.Background(), Options{URL: fallback.URL})
	assert.Error(t, err)
}

func TestPlan_ParsesOutput(t *testing.T) {
	out := writeLines(t, `{"id":"v","title":"Solo"}`)
	y := scriptFetcher(t, "cat '"+out+"'")

	plan, err := y.Plan(context.Background(), Options{URL: "https://y/v"})
	require.NoError(t, err)
	require.Equal(t, 1, plan.Len())
	assert.Equal(t, "Solo", plan.Items[0].Title)
}

func TestDependencyStatus_ExplicitMissing(t *testing.T) {
	report := DependencyStatus(filepath.Join(t.TempDir(), "no-yt-dlp"), filepath.Join(t.TempDir(), "no-ffmpeg"))
	assert.False(t, report.YTDLPFound)
	assert.False(t, report.FFmpegFound)

	err := CheckDependencies(filepath.Join(t.TempDir(), "no-yt-dlp"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yt-dlp")
}
