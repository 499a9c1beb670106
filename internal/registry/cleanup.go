package registry

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Purge defaults
const (
	DefaultReleaseWait   = 2 * time.Second
	DefaultPurgeAttempts = 5
	DefaultPurgeBackoff  = 500 * time.Millisecond
)

// RetryPolicy controls the cancelled-file purge. External processes may still
// hold handles on freshly cancelled files, so removal is retried.
type RetryPolicy struct {
	ReleaseWait time.Duration
	Attempts    int
	Backoff     time.Duration
}

// DefaultRetryPolicy returns the purge policy used by jobs
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		ReleaseWait: DefaultReleaseWait,
		Attempts:    DefaultPurgeAttempts,
		Backoff:     DefaultPurgeBackoff,
	}
}

// CleanupError captures a single failed removal
type CleanupError struct {
	Path string
	Err  error
}

// CleanupResult reports what the extension/intermediate pass did
type CleanupResult struct {
	Removed []string
	Kept    []string
	Errors  []CleanupError
}

// PurgeResult reports what the cancelled-file purge did
type PurgeResult struct {
	Deleted []string
	InUse   []string
}

// Cleanup removes intermediate artifacts and files whose extension is not in
// allowed. Blocked and already missing paths are skipped. Removal failures are
// collected and logged, never returned as an error.
func (r *Registry) Cleanup(allowed map[string]struct{}) CleanupResult {
	var result CleanupResult

	for _, path := range r.generated.list() {
		if r.blocked.has(path) {
			r.logger.Debug("cleanup skipped blocked file", slog.String("path", path))
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}

		name := filepath.Base(path)
		remove := IsIntermediate(name)
		if !remove {
			_, ok := allowed[strings.ToLower(filepath.Ext(name))]
			remove = !ok
		}
		if !remove {
			result.Kept = append(result.Kept, path)
			continue
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("cleanup failed to remove file", slog.String("path", path), slog.Any("error", err))
			result.Errors = append(result.Errors, CleanupError{Path: path, Err: err})
			continue
		}
		r.generated.remove(path)
		result.Removed = append(result.Removed, path)
		r.logger.Info("removed generated file", slog.String("path", path))
	}

	return result
}

// PurgeCancelled deletes every path scheduled with MarkForDeletion. It first
// waits policy.ReleaseWait, then retries each removal up to policy.Attempts
// times. Files still present afterwards are reported as in use.
func (r *Registry) PurgeCancelled(ctx context.Context, policy RetryPolicy) PurgeResult {
	var result PurgeResult

	pending := r.pending.list()
	if len(pending) == 0 {
		return result
	}
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}

	sleep(ctx, policy.ReleaseWait)

	for _, path := range pending {
		if removeWithRetry(ctx, path, policy) {
			result.Deleted = append(result.Deleted, path)
			r.generated.remove(path)
			r.logger.Info("deleted cancelled file", slog.String("path", path))
		} else {
			result.InUse = append(result.InUse, path)
			r.logger.Warn("file in use, not deleted", slog.String("path", path))
		}
		r.pending.remove(path)
	}

	return result
}

func removeWithRetry(ctx context.Context, path string, policy RetryPolicy) bool {
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		err := os.Remove(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return true
		}
		if attempt < policy.Attempts {
			if !sleep(ctx, policy.Backoff) {
				return false
			}
		}
	}
	return false
}

// sleep waits for d or until ctx is done; it reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
