package normalize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ytget/yt-audio/internal/registry"
)

// StagingDirName is the folder inside the output directory that receives
// fetched files while normalization is enabled
const StagingDirName = "temp_normalize"

// BlockList reports frozen final paths
type BlockList interface {
	IsBlocked(path string) bool
}

// Events receives pipeline notifications. Nil fields are skipped.
type Events struct {
	Status       func(text string)
	FileFinished func(path string)
	Error        func(message string)
	Log          func(text string)
}

// Item is a staged file and the final location it is promoted to
type Item struct {
	Staged string
	Final  string
}

// Result summarizes a pipeline run
type Result struct {
	Moved     []string
	Discarded []string
	Failed    []string
}

// Pipeline promotes staged files to the output directory, normalizing the
// target-format ones on the way
type Pipeline struct {
	StagingDir   string
	OutputDir    string
	AudioExt     string // target extension including the dot
	KeepOriginal bool
	OriginalExt  string
	TargetLUFS   float64

	Normalizer Normalizer
	Blocked    BlockList
	Events     Events
	Logger     *slog.Logger
}

// StagingDir returns the staging folder for an output directory
func StagingDir(outputDir string) string {
	return filepath.Join(outputDir, StagingDirName)
}

// FinalPathFor mirrors a staged path's position relative to the staging dir
// under the output directory
func (p *Pipeline) FinalPathFor(staged string) string {
	rel, err := filepath.Rel(p.StagingDir, staged)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(staged)
	}
	return filepath.Join(p.OutputDir, rel)
}

// Collect walks the staging directory and returns the files to promote in
// discovery order. A missing staging directory yields no items.
func (p *Pipeline) Collect() ([]Item, error) {
	if _, err := os.Stat(p.StagingDir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var items []Item
	err := filepath.WalkDir(p.StagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !p.collects(path) {
			return nil
		}
		items = append(items, Item{Staged: path, Final: p.FinalPathFor(path)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk staging directory %s: %w", p.StagingDir, err)
	}
	return items, nil
}

// Run promotes every collected item. Blocked final paths get their staged file
// deleted instead; per-file failures go to the error event and the batch
// continues. Files whose normalization fails are still moved un-normalized.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	var result Result
	logger := p.logger()

	items, err := p.Collect()
	if err != nil {
		return result, err
	}
	if len(items) == 0 {
		p.log("No files to normalize")
		return result, nil
	}

	total := 0
	for _, item := range items {
		if p.isTarget(item.Staged) {
			total++
		}
	}

	position := 0
	for _, item := range items {
		if p.Blocked != nil && p.Blocked.IsBlocked(item.Final) {
			if err := os.Remove(item.Staged); err != nil && !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("failed to discard cancelled staged file", slog.String("path", item.Staged), slog.Any("error", err))
			}
			logger.Info("skipped cancelled file", slog.String("final", item.Final))
			result.Discarded = append(result.Discarded, item.Staged)
			continue
		}

		if p.isTarget(item.Staged) {
			position++
			p.status(fmt.Sprintf("Normalizing audio (%d/%d)", position, total))

			if p.Normalizer != nil {
				if err := p.Normalizer.Normalize(ctx, item.Staged, p.TargetLUFS); err != nil {
					logger.Error("normalization failed", slog.String("path", item.Staged), slog.Any("error", err))
					p.reportError(fmt.Sprintf("normalize %s: %v", filepath.Base(item.Staged), err))
					result.Failed = append(result.Failed, item.Staged)
				}
			}
		}

		if err := moveFile(item.Staged, item.Final); err != nil {
			logger.Error("failed to move staged file", slog.String("from", item.Staged), slog.String("to", item.Final), slog.Any("error", err))
			p.reportError(err.Error())
			continue
		}

		result.Moved = append(result.Moved, item.Final)
		if p.Events.FileFinished != nil {
			p.Events.FileFinished(item.Final)
		}
		logger.Info("normalized file saved", slog.String("path", item.Final), slog.String("track", TrackLabel(item.Final)))
		p.log("Normalized and saved to: " + item.Final)
	}

	p.log(fmt.Sprintf("Normalization finished: %d moved, %d discarded, %d failed", len(result.Moved), len(result.Discarded), len(result.Failed)))
	return result, nil
}

// RemoveStaging deletes the staging directory and anything left in it
func (p *Pipeline) RemoveStaging() error {
	if err := os.RemoveAll(p.StagingDir); err != nil {
		return fmt.Errorf("remove staging directory %s: %w", p.StagingDir, err)
	}
	return nil
}

func (p *Pipeline) collects(path string) bool {
	if registry.IsIntermediate(filepath.Base(path)) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == strings.ToLower(p.AudioExt) {
		return !strings.HasSuffix(strings.TrimSuffix(path, filepath.Ext(path)), TempSuffix)
	}
	return p.KeepOriginal && p.OriginalExt != "" && ext == strings.ToLower(p.OriginalExt)
}

func (p *Pipeline) isTarget(path string) bool {
	return strings.EqualFold(filepath.Ext(path), p.AudioExt)
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) status(text string) {
	if p.Events.Status != nil {
		p.Events.Status(text)
	}
}

func (p *Pipeline) reportError(message string) {
	if p.Events.Error != nil {
		p.Events.Error(message)
	}
}

func (p *Pipeline) log(text string) {
	if p.Events.Log != nil {
		p.Events.Log(text)
	}
}

// moveFile renames src onto dst, creating dst's directory. It falls back to a
// copy when the rename crosses filesystems.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", dst, err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read staged file %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write final file %s: %w", dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove staged file %s: %w", src, err)
	}
	return nil
}
