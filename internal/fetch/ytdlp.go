package fetch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/lrstanley/go-ytdlp"

	"github.com/ytget/yt-audio/internal/model"
)

// Scanner limits for yt-dlp output lines
const (
	initialLineBuffer = 64 * 1024
	maxLineBuffer     = 4 * 1024 * 1024
	stderrTailLines   = 20
)

// Planner resolves a URL into a plan without yt-dlp's plan call
type Planner interface {
	Plan(ctx context.Context, url string) (*model.Plan, error)
}

type commandFunc func(ctx context.Context, c *ytdlp.Command, url string) *exec.Cmd

// YTDLP implements Fetcher by running the yt-dlp executable
type YTDLP struct {
	executable string
	fallback   Planner
	logger     *slog.Logger
	command    commandFunc
}

// YTDLPOption customizes the yt-dlp fetcher
type YTDLPOption func(*YTDLP)

// WithExecutable sets an explicit yt-dlp binary path
func WithExecutable(path string) YTDLPOption {
	return func(y *YTDLP) {
		y.executable = path
	}
}

// WithFallbackPlanner sets the planner used when the yt-dlp plan call fails
func WithFallbackPlanner(p Planner) YTDLPOption {
	return func(y *YTDLP) {
		y.fallback = p
	}
}

// WithFetchLogger sets the logger
func WithFetchLogger(logger *slog.Logger) YTDLPOption {
	return func(y *YTDLP) {
		if logger != nil {
			y.logger = logger
		}
	}
}

// NewYTDLP creates a yt-dlp backed fetcher
func NewYTDLP(opts ...YTDLPOption) *YTDLP {
	y := &YTDLP{
		executable: YTDLPCommand,
		logger:     slog.Default(),
	}
	y.command = y.buildCommand
	for _, opt := range opts {
		opt(y)
	}
	if y.executable == "" {
		y.executable = YTDLPCommand
	}
	return y
}

// buildCommand turns the builder's flags into an argv for the configured
// binary. The process is left unstarted so Run can attach its pipes.
func (y *YTDLP) buildCommand(ctx context.Context, c *ytdlp.Command, url string) *exec.Cmd {
	var args []string
	for _, f := range c.GetFlagConfig().ToFlags() {
		args = append(args, f.Raw()...)
	}
	args = append(args, url)
	return exec.CommandContext(ctx, y.executable, args...)
}

// base returns a builder carrying the flags shared by plan and run calls
func (y *YTDLP) base(opts Options) *ytdlp.Command {
	dl := ytdlp.New()
	if opts.Playlist {
		dl.YesPlaylist()
	} else {
		dl.NoPlaylist()
	}
	if opts.FFmpegLocation != "" {
		dl.FFmpegLocation(opts.FFmpegLocation)
	}
	return dl
}

// Plan runs yt-dlp with --flat-playlist --dump-single-json
func (y *YTDLP) Plan(ctx context.Context, opts Options) (*model.Plan, error) {
	dl := y.base(opts).
		FlatPlaylist().
		DumpSingleJSON().
		NoWarnings()

	cmd := y.command(ctx, dl, opts.URL)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		plan, perr := ParsePlan(stdout.Bytes(), opts.URL, opts.Playlist)
		if perr == nil {
			return plan, nil
		}
		err = perr
	} else {
		err = fmt.Errorf("yt-dlp plan failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	if y.fallback != nil && opts.Playlist && ctx.Err() == nil {
		y.logger.Warn("yt-dlp plan failed, trying library planner", slog.String("url", opts.URL), slog.Any("error", err))
		plan, ferr := y.fallback.Plan(ctx, opts.URL)
		if ferr == nil {
			return plan, nil
		}
		return nil, errors.Join(err, ferr)
	}
	return nil, err
}

// Run performs the transfer. stdout and stderr are scanned concurrently but
// every event is dispatched to h on the calling goroutine; while a handler
// blocks, yt-dlp stalls on its output pipe.
func (y *YTDLP) Run(ctx context.Context, opts Options, plan *model.Plan, h Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dl := y.base(opts).
		Format(opts.Format).
		MergeOutputFormat(opts.MergeFormat).
		Output(opts.OutputTemplate).
		RestrictFilenames().
		Continue().
		Newline().
		Progress().
		ProgressTemplate(progressTemplate).
		Print(postprocessTemplate).
		OutputNaPlaceholder("null").
		ExtractAudio().
		AudioFormat(opts.AudioFormat)
	if opts.AudioQuality != "" {
		dl.AudioQuality(opts.AudioQuality)
	}
	if opts.KeepVideo {
		dl.KeepVideo()
	}
	if plan != nil && plan.IsPlaylist {
		if items := PlaylistItems(plan); items != "" {
			dl.PlaylistItems(items)
		}
	}

	cmd := y.command(ctx, dl, opts.URL)
	return y.stream(ctx, cancel, cmd, h)
}

type streamLine struct {
	stderr bool
	text   string
}

func (y *YTDLP) stream(ctx context.Context, cancel context.CancelFunc, cmd *exec.Cmd, h Handler) error {
	cmd.Stdout = nil
	cmd.Stderr = nil
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	lines := make(chan streamLine)
	var wg sync.WaitGroup
	wg.Add(2)
	go scanLines(&wg, stdout, false, lines)
	go scanLines(&wg, stderr, true, lines)
	go func() {
		wg.Wait()
		close(lines)
	}()

	var (
		handlerErr error
		tail       []string
	)
	for line := range lines {
		if err := y.dispatch(line, h); err != nil {
			handlerErr = err
			break
		}
		if line.stderr && strings.TrimSpace(line.text) != "" {
			tail = append(tail, line.text)
			if len(tail) > stderrTailLines {
				tail = tail[1:]
			}
		}
	}

	if handlerErr != nil {
		// Kill yt-dlp and let the readers run out
		cancel()
		go func() {
			for range lines {
			}
		}()
	}
	waitErr := cmd.Wait()

	switch {
	case handlerErr != nil && errors.Is(handlerErr, ErrCancelled):
		return fmt.Errorf("yt-dlp aborted: %w", handlerErr)
	case handlerErr != nil:
		return fmt.Errorf("yt-dlp event handler: %w", handlerErr)
	case ctx.Err() != nil:
		return ctx.Err()
	case waitErr != nil:
		msg := strings.Join(tail, "\n")
		if last := lastErrorLine(tail); last != "" {
			msg = last
		}
		return fmt.Errorf("yt-dlp failed: %w: %s", waitErr, msg)
	}
	return nil
}

func (y *YTDLP) dispatch(line streamLine, h Handler) error {
	if ev, ok, err := ParseProgressLine(line.text); ok {
		if err != nil {
			y.logger.Debug("skipping malformed progress line", slog.Any("error", err))
			return nil
		}
		return h.OnProgress(ev)
	}
	if ev, ok, err := ParsePostprocessLine(line.text); ok {
		if err != nil {
			y.logger.Debug("skipping malformed post-processing line", slog.Any("error", err))
			return nil
		}
		return h.OnPostprocess(ev)
	}
	if strings.TrimSpace(line.text) != "" {
		y.logger.Debug("yt-dlp", slog.Bool("stderr", line.stderr), slog.String("line", line.text))
	}
	return nil
}

func scanLines(wg *sync.WaitGroup, r io.Reader, isStderr bool, out chan<- streamLine) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialLineBuffer), maxLineBuffer)
	for scanner.Scan() {
		out <- streamLine{stderr: isStderr, text: scanner.Text()}
	}
}

func lastErrorLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "ERROR:") {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}

type planJSON struct {
	Type       string      `json:"_type"`
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	WebpageURL string      `json:"webpage_url"`
	Duration   *float64    `json:"duration"`
	Entries    []entryJSON `json:"entries"`
}

type entryJSON struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	PlaylistIndex *int     `json:"playlist_index"`
	Duration      *float64 `json:"duration"`
}

// ParsePlan decodes --dump-single-json output. Playlist entries without an
// explicit playlist_index get their 1-based position.
func ParsePlan(data []byte, url string, allowPlaylist bool) (*model.Plan, error) {
	var raw planJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yt-dlp plan: %w", err)
	}

	plan := model.NewPlan(url)
	plan.ID = raw.ID
	plan.Title = raw.Title

	if allowPlaylist && raw.Type == "playlist" {
		plan.IsPlaylist = true
		for i, entry := range raw.Entries {
			index := i + 1
			if entry.PlaylistIndex != nil && *entry.PlaylistIndex > 0 {
				index = *entry.PlaylistIndex
			}
			plan.AddItem(&model.PlanItem{
				ID:       entry.ID,
				Title:    entry.Title,
				URL:      entry.URL,
				Index:    index,
				Duration: FormatDuration(entry.Duration),
			})
		}
		return plan, nil
	}

	item := &model.PlanItem{
		ID:       raw.ID,
		Title:    raw.Title,
		URL:      raw.WebpageURL,
		Duration: FormatDuration(raw.Duration),
	}
	if item.URL == "" {
		item.URL = url
	}
	plan.AddItem(item)
	return plan, nil
}

// FormatDuration formats seconds into MM:SS or HH:MM:SS
func FormatDuration(seconds *float64) string {
	if seconds == nil || *seconds <= 0 {
		return ""
	}
	total := int(*seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
