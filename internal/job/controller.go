package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ytget/yt-audio/internal/fetch"
	"github.com/ytget/yt-audio/internal/marker"
	"github.com/ytget/yt-audio/internal/model"
	"github.com/ytget/yt-audio/internal/normalize"
	"github.com/ytget/yt-audio/internal/platform"
	"github.com/ytget/yt-audio/internal/registry"
)

// Status texts announced through the Status hook
const (
	StatusStarting    = "Starting download..."
	StatusPaused      = "Paused"
	StatusResuming    = "Resuming download..."
	StatusNormalizing = "Normalizing audio"
	StatusCleaning    = "Cleaning up"
	StatusDone        = "Done"
	StatusCancelled   = "Cancelled"
	StatusFailed      = "Failed"
)

// ErrAlreadyStarted is reported when Start is called twice on one controller
var ErrAlreadyStarted = errors.New("job already started")

// Deps are the collaborators a controller drives
type Deps struct {
	Fetcher    fetch.Fetcher
	Normalizer normalize.Normalizer
	Confirmer  Confirmer
	Hooks      Hooks
	Logger     *slog.Logger
}

// Option customizes a controller
type Option func(*Controller)

// WithTargetLUFS sets the normalization loudness target
func WithTargetLUFS(lufs float64) Option {
	return func(c *Controller) {
		c.targetLUFS = lufs
	}
}

// WithRetryPolicy sets the cancelled-file purge policy
func WithRetryPolicy(p registry.RetryPolicy) Option {
	return func(c *Controller) {
		c.policy = p
	}
}

// WithFFmpegLocation passes an explicit ffmpeg location to the fetcher
func WithFFmpegLocation(path string) Option {
	return func(c *Controller) {
		c.ffmpegLocation = path
	}
}

// WithMarkerFileName overrides the state marker file name
func WithMarkerFileName(name string) Option {
	return func(c *Controller) {
		c.markerName = name
	}
}

// WithState injects a state object, mainly for tests
func WithState(s *State) Option {
	return func(c *Controller) {
		if s != nil {
			c.state = s
		}
	}
}

// WithJobID sets the job identifier instead of generating one
func WithJobID(id string) Option {
	return func(c *Controller) {
		if id != "" {
			c.id = id
		}
	}
}

// Controller runs a single job from plan to cleanup
type Controller struct {
	id             string
	job            model.Job
	state          *State
	fetcher        fetch.Fetcher
	normalizer     normalize.Normalizer
	confirmer      Confirmer
	hooks          Hooks
	logger         *slog.Logger
	registry       *registry.Registry
	marker         *marker.Store
	markerName     string
	pipeline       *normalize.Pipeline
	policy         registry.RetryPolicy
	targetLUFS     float64
	ffmpegLocation string

	// ctx is the Start context, read only by the worker goroutine
	ctx     context.Context
	started atomic.Bool

	// markerMu orders marker writes against teardown's final Clear
	markerMu   sync.Mutex
	markerDone bool
}

// New validates the job and builds a controller. Configuration errors are
// returned here and nothing is created on disk.
func New(job model.Job, deps Deps, opts ...Option) (*Controller, error) {
	valid, err := job.Validate()
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(valid.OutputDir); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("%w: output path %s is not a directory", model.ErrInvalidJob, valid.OutputDir)
	}
	if deps.Fetcher == nil {
		return nil, errors.New("job requires a fetcher")
	}
	if valid.Normalize && deps.Normalizer == nil {
		return nil, errors.New("normalization enabled but no normalizer configured")
	}

	c := &Controller{
		id:         generateJobID(),
		job:        valid,
		state:      NewState(),
		fetcher:    deps.Fetcher,
		normalizer: deps.Normalizer,
		confirmer:  deps.Confirmer,
		hooks:      deps.Hooks,
		policy:     registry.DefaultRetryPolicy(),
		targetLUFS: normalize.DefaultTargetLUFS,
		ctx:        context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger.With(slog.String("job_id", c.id), slog.String("url", c.job.URL))
	c.registry = registry.New(c.logger)
	c.marker = marker.New(c.job.OutputDir, marker.WithFileName(c.markerName))
	if c.job.Normalize {
		c.pipeline = &normalize.Pipeline{
			StagingDir:   normalize.StagingDir(c.job.OutputDir),
			OutputDir:    c.job.OutputDir,
			AudioExt:     c.job.AudioExt(),
			KeepOriginal: c.job.KeepOriginal,
			OriginalExt:  model.OriginalContainerExt,
			TargetLUFS:   c.targetLUFS,
			Normalizer:   c.normalizer,
			Blocked:      c.registry,
			Events: normalize.Events{
				Status:       c.status,
				FileFinished: c.fileFinished,
				Error:        c.reportError,
				Log:          c.log,
			},
			Logger: c.logger,
		}
	}
	return c, nil
}

// ID returns the job identifier
func (c *Controller) ID() string {
	return c.id
}

// Job returns the validated job descriptor
func (c *Controller) Job() model.Job {
	return c.job
}

// Phase returns the current lifecycle phase
func (c *Controller) Phase() model.Phase {
	return c.state.Phase()
}

// AttachHooks chains extra hooks after the configured ones. It must be called
// before Start.
func (c *Controller) AttachHooks(h Hooks) {
	c.hooks = c.hooks.Chain(h)
}

// MarkerPath returns the location of the state marker
func (c *Controller) MarkerPath() string {
	return c.marker.Path()
}

// Start runs the whole job on the calling goroutine and returns the terminal
// phase it ended in. It never returns an error; failures go to the Error hook.
func (c *Controller) Start(ctx context.Context) model.Phase {
	if !c.started.CompareAndSwap(false, true) {
		c.reportError(ErrAlreadyStarted.Error())
		return c.state.Phase()
	}
	c.ctx = ctx

	lock, err := c.marker.Lock()
	if err != nil {
		c.reportError(fmt.Sprintf("Cannot start job: %v", err))
		c.state.transition(model.PhaseFailed)
		c.status(StatusFailed)
		return model.PhaseFailed
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn("failed to release output lock", slog.Any("error", err))
		}
	}()

	c.state.transition(model.PhaseRunning)
	c.logger.Info("job started",
		slog.String("output", c.job.OutputDir),
		slog.String("format", c.job.Format),
		slog.Bool("playlist", c.job.Playlist),
		slog.Bool("normalize", c.job.Normalize),
	)
	c.status(StatusStarting)

	fetchErr := c.runFetch(ctx)

	if c.state.finishFetch() == model.PhasePaused {
		// A pause that landed after the last callback holds teardown until
		// Resume or Cancel opens the gate
		c.log("Download paused after the last item, waiting to finish")
		if err := c.state.Gate().Wait(ctx); err != nil && fetchErr == nil {
			fetchErr = err
		}
	}

	final := c.outcome(ctx, fetchErr)
	c.teardown(context.WithoutCancel(ctx))

	c.state.transition(final)
	switch final {
	case model.PhaseCompleted:
		c.status(StatusDone)
	case model.PhaseCancelled:
		c.status(StatusCancelled)
	default:
		c.status(StatusFailed)
	}
	c.logger.Info("job finished", slog.String("phase", final.String()))
	return final
}

// outcome maps the fetch result to a terminal phase. Cancellation is logged,
// transfer errors go to the Error hook once.
func (c *Controller) outcome(ctx context.Context, fetchErr error) model.Phase {
	switch {
	case fetchErr == nil && c.state.CancelNow():
		c.log("Download cancelled")
		return model.PhaseCancelled
	case fetchErr == nil:
		return model.PhaseCompleted
	case errors.Is(fetchErr, fetch.ErrCancelled):
		c.log("Download cancelled")
		return model.PhaseCancelled
	case ctx.Err() != nil:
		c.log(fmt.Sprintf("Download interrupted: %v", ctx.Err()))
		return model.PhaseCancelled
	default:
		c.reportError(fmt.Sprintf("Download failed: %v", fetchErr))
		return model.PhaseFailed
	}
}

// runFetch plans the job, filters cached items and runs the transfer
func (c *Controller) runFetch(ctx context.Context) error {
	dir := c.job.OutputDir
	if c.pipeline != nil {
		dir = c.pipeline.StagingDir
	}
	if err := platform.CreateDirectoryIfNotExists(dir); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	opts := fetch.OptionsForJob(c.job, dir, c.ffmpegLocation)
	plan, err := c.fetcher.Plan(ctx, opts)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	if plan.IsPlaylist && plan.Title == "" {
		// The final folder is named after the playlist, so without a title
		// there is no path to look for
		c.log("Playlist title unknown, skipping the already-downloaded check")
	} else if plan.IsPlaylist {
		filtered := plan.Filter(func(item *model.PlanItem) bool {
			if platform.IsCachedFinal(c.job, item) {
				c.log(fmt.Sprintf("Already downloaded, skipping: %s", item.Title))
				return false
			}
			return true
		})
		if filtered.IsEmpty() {
			c.log("Every playlist item is already downloaded")
			return nil
		}
		plan = filtered
	} else if !plan.IsEmpty() && platform.IsCachedFinal(c.job, plan.Items[0]) {
		c.log("Final file already exists, skipping download")
		return nil
	}

	c.logger.Info("fetch planned", slog.Int("items", plan.Len()), slog.Bool("playlist", plan.IsPlaylist))
	return c.fetcher.Run(ctx, opts, plan, &callbacks{c: c})
}

// teardown runs normalization, cleanup and the cancelled-file purge, then
// clears the marker
func (c *Controller) teardown(ctx context.Context) {
	if c.pipeline != nil {
		c.status(StatusNormalizing)
		if _, err := c.pipeline.Run(ctx); err != nil {
			c.reportError(fmt.Sprintf("Normalization failed: %v", err))
		}
	}

	c.status(StatusCleaning)
	result := c.registry.Cleanup(c.job.AllowedExts())
	for _, e := range result.Errors {
		c.log(fmt.Sprintf("Could not remove %s: %v", e.Path, e.Err))
	}

	purge := c.registry.PurgeCancelled(ctx, c.policy)
	for _, path := range purge.Deleted {
		c.log("Deleted cancelled file: " + path)
	}
	for _, path := range purge.InUse {
		c.log("File in use, not deleted: " + path)
	}
	c.registry.ClearBlocked()

	if c.pipeline != nil {
		if err := c.pipeline.RemoveStaging(); err != nil {
			c.logger.Warn("failed to remove staging directory", slog.Any("error", err))
		}
	}

	c.markerMu.Lock()
	c.markerDone = true
	err := c.marker.Clear()
	c.markerMu.Unlock()
	if err != nil {
		c.logger.Warn("failed to clear state marker", slog.Any("error", err))
	}
}

// saveMarker writes the marker unless teardown already cleared it or the
// phase moved on since the caller checked it
func (c *Controller) saveMarker(want model.Phase) error {
	c.markerMu.Lock()
	defer c.markerMu.Unlock()
	if c.markerDone || c.state.Phase() != want {
		return nil
	}
	return c.marker.Save(c.job, c.id, want == model.PhasePaused)
}

// Pause suspends the job at the next progress callback and persists the
// marker. It is a no-op unless the job is running.
func (c *Controller) Pause() bool {
	if !c.state.Pause() {
		return false
	}
	if err := c.saveMarker(model.PhasePaused); err != nil {
		c.logger.Warn("failed to save state marker", slog.Any("error", err))
	}
	c.status(StatusPaused)
	c.log("Download paused")
	return true
}

// Resume reopens the gate and clears the marker
func (c *Controller) Resume() bool {
	if !c.state.Resume() {
		return false
	}
	c.markerMu.Lock()
	err := c.marker.Clear()
	c.markerMu.Unlock()
	if err != nil {
		c.logger.Warn("failed to clear state marker", slog.Any("error", err))
	}
	c.status(StatusResuming)
	c.log("Download resumed")
	return true
}

// Cancel stops a single-item job at the next progress callback; playlist jobs
// finish the current item first.
func (c *Controller) Cancel() {
	if c.job.Playlist {
		c.CancelAfterCurrentItem()
		return
	}
	c.state.RequestCancelNow()
	c.log("Cancellation requested")
}

// CancelAfterCurrentItem lets the in-flight item finish, asks whether to keep
// it, then stops the job
func (c *Controller) CancelAfterCurrentItem() {
	c.state.RequestCancelAfterCurrent()
	c.log("Cancellation requested after the current item")
}

// Checkpoint persists the marker for an active job, for use on abrupt
// shutdown. Inactive jobs are left alone.
func (c *Controller) Checkpoint() error {
	phase := c.state.Phase()
	if !phase.IsActive() {
		return nil
	}
	if err := c.saveMarker(phase); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	c.logger.Info("state marker checkpointed", slog.String("phase", phase.String()))
	return nil
}

func (c *Controller) confirmKeep(path string) bool {
	if c.confirmer == nil {
		return true
	}
	return c.confirmer.ConfirmKeep(c.ctx, path)
}

func (c *Controller) status(text string) {
	c.logger.Debug("status", slog.String("status", text))
	if c.hooks.Status != nil {
		c.hooks.Status(text)
	}
}

func (c *Controller) log(text string) {
	c.logger.Info(text)
	if c.hooks.Log != nil {
		c.hooks.Log(text)
	}
}

func (c *Controller) reportError(message string) {
	c.logger.Error(message)
	if c.hooks.Error != nil {
		c.hooks.Error(message)
	}
}

func (c *Controller) fileFinished(path string) {
	c.logger.Info("file finished", slog.String("path", path))
	if c.hooks.FileFinished != nil {
		c.hooks.FileFinished(path)
	}
}

func (c *Controller) progress(percent float64, index, count int) {
	if c.hooks.Progress != nil {
		c.hooks.Progress(percent, index, count)
	}
}

// generateJobID returns a time-ordered UUID v7
func generateJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("job-%d", time.Now().UnixNano())
	}
	return id.String()
}
