package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"

	"github.com/ytget/yt-audio/internal/logging"
	"github.com/ytget/yt-audio/internal/model"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateNormalize(); err != nil {
		return err
	}
	if err := c.validateCleanup(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateControl()
}

func (c *Config) validateOutput() error {
	if c.Output.Dir == "" {
		return errors.New("output.dir must be set")
	}
	// Reuse the job validation for format rules
	probe := model.Job{URL: "https://example.invalid", OutputDir: c.Output.Dir, Format: c.Output.Format}
	if _, err := probe.Validate(); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.PlanTimeoutSeconds <= 0 {
		return errors.New("fetch.plan_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateNormalize() error {
	if c.Normalize.TargetLUFS < -70 || c.Normalize.TargetLUFS > -5 {
		return fmt.Errorf("normalize.target_lufs must be between -70 and -5, got %g", c.Normalize.TargetLUFS)
	}
	if c.Normalize.TruePeak < -9 || c.Normalize.TruePeak > 0 {
		return fmt.Errorf("normalize.true_peak must be between -9 and 0, got %g", c.Normalize.TruePeak)
	}
	if c.Normalize.LRA < 1 || c.Normalize.LRA > 50 {
		return fmt.Errorf("normalize.lra must be between 1 and 50, got %g", c.Normalize.LRA)
	}
	return nil
}

func (c *Config) validateCleanup() error {
	if c.Cleanup.ReleaseWaitMillis < 0 || c.Cleanup.PurgeBackoffMillis < 0 {
		return errors.New("cleanup wait and backoff must not be negative")
	}
	if c.Cleanup.PurgeAttempts < 1 {
		return errors.New("cleanup.purge_attempts must be at least 1")
	}
	if filepath.Base(c.Cleanup.MarkerFile) != c.Cleanup.MarkerFile {
		return fmt.Errorf("cleanup.marker_file must be a bare file name, got %q", c.Cleanup.MarkerFile)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
}

func (c *Config) validateControl() error {
	if c.Control.Listen == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Control.Listen); err != nil {
		return fmt.Errorf("control.listen: %w", err)
	}
	return nil
}
