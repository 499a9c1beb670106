package config

import (
	"fyne.io/fyne/v2"

	"github.com/ytget/yt-audio/internal/model"
)

// Settings keys for Fyne preferences
const (
	KeyOutputDir          = "output_directory"
	KeyFormat             = "audio_format"
	KeyQuality            = "audio_quality"
	KeyPlaylist           = "playlist"
	KeyKeepOriginal       = "keep_original"
	KeyNormalize          = "normalize"
	KeyLanguage           = "app_language"
	KeyAutoRevealComplete = "auto_reveal_on_complete"
)

// Default values for preferences not covered by the config file
const (
	DefaultLanguage           = "system"
	DefaultAutoRevealComplete = false
)

// Settings stores the last-used desktop values in Fyne preferences. Values
// missing from the preferences fall back to the loaded config file.
type Settings struct {
	app      fyne.App
	defaults Config
}

// NewSettings creates a new settings manager. A nil cfg uses Default().
func NewSettings(app fyne.App, cfg *Config) *Settings {
	defaults := Default()
	if cfg != nil {
		defaults = *cfg
	}
	return &Settings{app: app, defaults: defaults}
}

// GetOutputDirectory returns the configured output directory
func (s *Settings) GetOutputDirectory() string {
	dir := s.app.Preferences().String(KeyOutputDir)
	if dir == "" {
		return s.defaults.Output.Dir
	}
	return dir
}

// SetOutputDirectory sets the output directory
func (s *Settings) SetOutputDirectory(dir string) {
	s.app.Preferences().SetString(KeyOutputDir, dir)
}

// GetFormat returns the target audio format
func (s *Settings) GetFormat() string {
	return s.app.Preferences().StringWithFallback(KeyFormat, s.defaults.Output.Format)
}

// SetFormat sets the target audio format; unknown formats are ignored
func (s *Settings) SetFormat(format string) {
	for _, f := range s.GetFormatOptions() {
		if f == format {
			s.app.Preferences().SetString(KeyFormat, format)
			return
		}
	}
}

// GetFormatOptions returns the selectable audio formats
func (s *Settings) GetFormatOptions() []string {
	return []string{model.FormatMP3, model.FormatM4A, model.FormatOpus, model.FormatFLAC, model.FormatWAV, model.FormatAAC}
}

// GetQuality returns the audio quality passed to the extractor
func (s *Settings) GetQuality() string {
	return s.app.Preferences().StringWithFallback(KeyQuality, s.defaults.Output.Quality)
}

// SetQuality sets the audio quality
func (s *Settings) SetQuality(quality string) {
	s.app.Preferences().SetString(KeyQuality, quality)
}

// GetQualityOptions returns common quality presets
func (s *Settings) GetQualityOptions() []string {
	return []string{"128K", "192K", "256K", "320K", "0"}
}

// GetPlaylist returns whether playlist mode is enabled
func (s *Settings) GetPlaylist() bool {
	return s.app.Preferences().BoolWithFallback(KeyPlaylist, s.defaults.Output.Playlist)
}

// SetPlaylist sets playlist mode
func (s *Settings) SetPlaylist(enabled bool) {
	s.app.Preferences().SetBool(KeyPlaylist, enabled)
}

// GetKeepOriginal returns whether the merged original is kept
func (s *Settings) GetKeepOriginal() bool {
	return s.app.Preferences().BoolWithFallback(KeyKeepOriginal, s.defaults.Output.KeepOriginal)
}

// SetKeepOriginal sets whether the merged original is kept
func (s *Settings) SetKeepOriginal(keep bool) {
	s.app.Preferences().SetBool(KeyKeepOriginal, keep)
}

// GetNormalize returns whether loudness normalization is enabled
func (s *Settings) GetNormalize() bool {
	return s.app.Preferences().BoolWithFallback(KeyNormalize, s.defaults.Normalize.Enabled)
}

// SetNormalize sets loudness normalization
func (s *Settings) SetNormalize(enabled bool) {
	s.app.Preferences().SetBool(KeyNormalize, enabled)
}

// GetLanguage returns the configured language
func (s *Settings) GetLanguage() string {
	lang := s.app.Preferences().String(KeyLanguage)
	if lang == "" {
		s.SetLanguage(DefaultLanguage)
		return DefaultLanguage
	}
	return lang
}

// SetLanguage sets the application language
func (s *Settings) SetLanguage(lang string) {
	s.app.Preferences().SetString(KeyLanguage, lang)
}

// GetLanguageOptions returns available language options
func (s *Settings) GetLanguageOptions() map[string]string {
	return map[string]string{
		"system": "System Default",
		"en":     "English",
		"ru":     "Русский",
		"pt":     "Português",
	}
}

// GetAutoRevealOnComplete returns whether to reveal finished files
func (s *Settings) GetAutoRevealOnComplete() bool {
	return s.app.Preferences().BoolWithFallback(KeyAutoRevealComplete, DefaultAutoRevealComplete)
}

// SetAutoRevealOnComplete sets whether to reveal finished files
func (s *Settings) SetAutoRevealOnComplete(autoReveal bool) {
	s.app.Preferences().SetBool(KeyAutoRevealComplete, autoReveal)
}

// Job builds a job descriptor for url from the current settings
func (s *Settings) Job(url string) model.Job {
	return model.Job{
		URL:          url,
		OutputDir:    s.GetOutputDirectory(),
		Format:       s.GetFormat(),
		Quality:      s.GetQuality(),
		Playlist:     s.GetPlaylist(),
		KeepOriginal: s.GetKeepOriginal(),
		Normalize:    s.GetNormalize(),
	}
}

// Config returns the file configuration the settings fall back to
func (s *Settings) Config() Config {
	return s.defaults
}
