// Package registry tracks every file a job produces and decides which of them
// survive on disk once the job ends.
//
// The registry is written only from the job's worker goroutine, so none of its
// sets are guarded by locks.
package registry

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// intermediatePattern matches per-stream artifacts yt-dlp leaves next to the
// final output, e.g. "Song.f251.webm" or "Song.f137.mp4.part".
var intermediatePattern = regexp.MustCompile(`(?i)\.f\d+\.(webm|mp4|mkv|m4a|aac|opus)(\.part)?$`)

// pathSet is an insertion-ordered set of absolute paths.
type pathSet struct {
	index map[string]struct{}
	order []string
}

func newPathSet() *pathSet {
	return &pathSet{index: make(map[string]struct{})}
}

func (s *pathSet) add(path string) bool {
	if _, ok := s.index[path]; ok {
		return false
	}
	s.index[path] = struct{}{}
	s.order = append(s.order, path)
	return true
}

func (s *pathSet) has(path string) bool {
	_, ok := s.index[path]
	return ok
}

func (s *pathSet) remove(path string) {
	if _, ok := s.index[path]; !ok {
		return
	}
	delete(s.index, path)
	for i, p := range s.order {
		if p == path {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *pathSet) list() []string {
	return append([]string(nil), s.order...)
}

func (s *pathSet) clear() {
	s.index = make(map[string]struct{})
	s.order = nil
}

// Registry holds the generated, blocked and pending-deletion path sets of a job.
//
// Blocked paths are frozen: the extension/intermediate cleanup pass never
// removes them and the normalization pipeline never promotes a staged file onto
// a blocked final path. Only the explicit cancelled-file purge may delete them.
type Registry struct {
	generated *pathSet
	blocked   *pathSet
	pending   *pathSet
	logger    *slog.Logger
}

// New creates an empty registry
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		generated: newPathSet(),
		blocked:   newPathSet(),
		pending:   newPathSet(),
		logger:    logger,
	}
}

// Add registers a path as generated by the job. Relative paths are resolved
// against the working directory; repeated registrations are no-ops.
func (r *Registry) Add(path string) string {
	abs := absPath(path)
	if abs == "" {
		return ""
	}
	if r.generated.add(abs) {
		r.logger.Debug("registered generated file", slog.String("path", abs))
	}
	return abs
}

// Block exempts a path from the automatic cleanup and promotion passes
func (r *Registry) Block(path string) {
	if abs := absPath(path); abs != "" {
		r.blocked.add(abs)
	}
}

// IsBlocked reports whether the path is frozen
func (r *Registry) IsBlocked(path string) bool {
	return r.blocked.has(absPath(path))
}

// ClearBlocked empties the blocked set
func (r *Registry) ClearBlocked() {
	r.blocked.clear()
}

// MarkForDeletion schedules a path for the retried cancelled-file purge
func (r *Registry) MarkForDeletion(path string) {
	if abs := absPath(path); abs != "" {
		r.pending.add(abs)
	}
}

// IsPendingDeletion reports whether the path is scheduled for the purge
func (r *Registry) IsPendingDeletion(path string) bool {
	return r.pending.has(absPath(path))
}

// Generated returns all generated paths in discovery order
func (r *Registry) Generated() []string {
	return r.generated.list()
}

// Blocked returns all blocked paths
func (r *Registry) Blocked() []string {
	return r.blocked.list()
}

// PendingDeletion returns all paths awaiting the purge
func (r *Registry) PendingDeletion() []string {
	return r.pending.list()
}

// ScanIntermediates lists the directory containing outputPath and registers
// every intermediate artifact sharing the output's base name. It returns the
// newly found paths.
func (r *Registry) ScanIntermediates(outputPath string) []string {
	abs := absPath(outputPath)
	if abs == "" {
		return nil
	}
	dir := filepath.Dir(abs)
	base := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))

	entries, err := os.ReadDir(dir)
	if err != nil {
		r.logger.Debug("intermediate scan skipped", slog.String("dir", dir), slog.Any("error", err))
		return nil
	}

	var found []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, base+".") || !IsIntermediate(name) {
			continue
		}
		path := filepath.Join(dir, name)
		if r.generated.add(path) {
			found = append(found, path)
		}
	}
	sort.Strings(found)
	return found
}

// Siblings returns registered paths that share outputPath's directory and base
// name, including outputPath itself when registered.
func (r *Registry) Siblings(outputPath string) []string {
	abs := absPath(outputPath)
	if abs == "" {
		return nil
	}
	dir := filepath.Dir(abs)
	base := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))

	var out []string
	for _, path := range r.generated.list() {
		if filepath.Dir(path) != dir {
			continue
		}
		name := filepath.Base(path)
		if name == filepath.Base(abs) || strings.HasPrefix(name, base+".") {
			out = append(out, path)
		}
	}
	return out
}

// IsIntermediate reports whether a filename is a per-stream fetch artifact
func IsIntermediate(name string) bool {
	return intermediatePattern.MatchString(name)
}

func absPath(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
