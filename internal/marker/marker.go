// Package marker persists the per-output-directory state marker that makes an
// interrupted job visible to the next run. The marker is advisory: nothing in
// this module resumes a job automatically from it.
package marker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/ytget/yt-audio/internal/model"
)

// Marker file names inside the output directory
const (
	DefaultFileName = ".download_state.json"
	LockFileName    = ".download_state.lock"
)

var (
	// ErrLocked is returned when another controller holds the directory lock.
	ErrLocked = errors.New("output directory is locked by another job")
	// ErrNotFound is returned by Load when no marker exists.
	ErrNotFound = errors.New("no state marker")
)

// State is the serialized marker content
type State struct {
	model.Job
	Paused  bool      `json:"paused"`
	JobID   string    `json:"job_id,omitempty"`
	SavedAt time.Time `json:"saved_at,omitempty"`
}

// Store reads and writes the marker of one output directory
type Store struct {
	dir      string
	fileName string
	now      func() time.Time
}

// Option customizes a Store
type Option func(*Store)

// WithFileName overrides the marker file name
func WithFileName(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.fileName = name
		}
	}
}

// New creates a marker store rooted at the output directory
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:      dir,
		fileName: DefaultFileName,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the marker file location
func (s *Store) Path() string {
	return filepath.Join(s.dir, s.fileName)
}

// Save writes the job descriptor and pause flag. The write goes to a temp file
// in the same directory and is renamed into place.
func (s *Store) Save(job model.Job, jobID string, paused bool) error {
	state := State{
		Job:     job,
		Paused:  paused,
		JobID:   jobID,
		SavedAt: s.now().UTC(),
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state marker: %w", err)
	}
	data = append(data, '\n')
	return writeAtomic(s.Path(), data)
}

// Load reads the marker. It returns ErrNotFound when the file does not exist.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read state marker %s: %w", s.Path(), err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state marker %s: %w", s.Path(), err)
	}
	return &state, nil
}

// Exists reports whether a marker is present
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// Clear removes the marker; a missing marker is not an error
func (s *Store) Clear() error {
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove state marker %s: %w", s.Path(), err)
	}
	return nil
}

// Lock is a held advisory lock on an output directory
type Lock struct {
	lock *flock.Flock
	path string
}

// Lock acquires the directory lock without blocking. It returns ErrLocked when
// another process or controller already holds it.
func (s *Store) Lock() (*Lock, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", s.dir, err)
	}
	fl := flock.New(filepath.Join(s.dir, LockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	// The holder unlinks the file before releasing it, so a lock taken on
	// an inode that is no longer at the path belongs to a finished job
	current, err := holdsCurrentFile(fl)
	if err != nil || !current {
		_ = fl.Unlock()
		if err != nil {
			return nil, fmt.Errorf("verify lock: %w", err)
		}
		return nil, ErrLocked
	}
	return &Lock{lock: fl, path: fl.Path()}, nil
}

// holdsCurrentFile reports whether the locked handle is still the file at the
// lock path
func holdsCurrentFile(fl *flock.Flock) (bool, error) {
	held, err := fl.Stat()
	if err != nil {
		return false, err
	}
	onDisk, err := os.Stat(fl.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return os.SameFile(held, onDisk), nil
}

// IsLocked reports whether a live job currently holds the directory lock
func (s *Store) IsLocked() (bool, error) {
	path := filepath.Join(s.dir, LockFileName)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock: %w", err)
	}
	if ok {
		_ = fl.Unlock()
	}
	return !ok, nil
}

// Unlock removes the lock file while still holding it, then releases the
// lock. A contender that raced onto the removed inode fails its check in Lock.
func (l *Lock) Unlock() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_ = l.lock.Unlock()
		return fmt.Errorf("remove lock file: %w", err)
	}
	return l.lock.Unlock()
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".download_state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}
