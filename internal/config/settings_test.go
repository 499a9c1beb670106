package config

import (
	"testing"

	"fyne.io/fyne/v2/test"
)

func TestNewSettings(t *testing.T) {
	app := test.NewApp()
	settings := NewSettings(app, nil)

	if settings.app != app {
		t.Error("Settings app reference should match provided app")
	}
}

func TestOutputDirectory(t *testing.T) {
	app := test.NewApp()
	cfg := Default()
	cfg.Output.Dir = "/music/from-config"
	settings := NewSettings(app, &cfg)

	// Falls back to the config file
	if dir := settings.GetOutputDirectory(); dir != "/music/from-config" {
		t.Errorf("Expected config output directory, got %s", dir)
	}

	customDir := "/custom/music"
	settings.SetOutputDirectory(customDir)
	if dir := settings.GetOutputDirectory(); dir != customDir {
		t.Errorf("Expected output directory %s, got %s", customDir, dir)
	}
}

func TestFormat(t *testing.T) {
	app := test.NewApp()
	settings := NewSettings(app, nil)

	if format := settings.GetFormat(); format != defaultFormat {
		t.Errorf("Expected default format %s, got %s", defaultFormat, format)
	}

	settings.SetFormat("opus")
	if format := settings.GetFormat(); format != "opus" {
		t.Errorf("Expected format opus, got %s", format)
	}

	// Unknown formats are ignored
	settings.SetFormat("exe")
	if format := settings.GetFormat(); format != "opus" {
		t.Errorf("Unknown format should be ignored, got %s", format)
	}
}

func TestToggles(t *testing.T) {
	app := test.NewApp()
	cfg := Default()
	cfg.Normalize.Enabled = true
	settings := NewSettings(app, &cfg)

	if !settings.GetNormalize() {
		t.Error("Normalize should default to the config value")
	}
	if settings.GetPlaylist() || settings.GetKeepOriginal() {
		t.Error("Playlist and keep original should default to false")
	}

	settings.SetNormalize(false)
	settings.SetPlaylist(true)
	settings.SetKeepOriginal(true)
	settings.SetQuality("320K")

	job := settings.Job("https://example.com/v")
	if job.Normalize || !job.Playlist || !job.KeepOriginal {
		t.Errorf("Job does not reflect toggles: %+v", job)
	}
	if job.Quality != "320K" {
		t.Errorf("Expected quality 320K, got %s", job.Quality)
	}
	if _, err := job.Validate(); err != nil {
		t.Errorf("Job from settings should validate: %v", err)
	}
}

func TestLanguage(t *testing.T) {
	app := test.NewApp()
	settings := NewSettings(app, nil)

	if lang := settings.GetLanguage(); lang != DefaultLanguage {
		t.Errorf("Expected default language %s, got %s", DefaultLanguage, lang)
	}

	settings.SetLanguage("en")
	if lang := settings.GetLanguage(); lang != "en" {
		t.Errorf("Expected language 'en', got %s", lang)
	}
}

func TestGetLanguageOptions(t *testing.T) {
	app := test.NewApp()
	settings := NewSettings(app, nil)

	options := settings.GetLanguageOptions()
	expectedLangs := []string{"system", "en", "ru", "pt"}
	for _, lang := range expectedLangs {
		if _, exists := options[lang]; !exists {
			t.Errorf("Expected language option '%s' to exist", lang)
		}
	}
	if len(options) != len(expectedLangs) {
		t.Errorf("Expected %d language options, got %d", len(expectedLangs), len(options))
	}
}

func TestAutoReveal(t *testing.T) {
	app := test.NewApp()
	settings := NewSettings(app, nil)

	if settings.GetAutoRevealOnComplete() != DefaultAutoRevealComplete {
		t.Error("Unexpected auto reveal default")
	}
	settings.SetAutoRevealOnComplete(true)
	if !settings.GetAutoRevealOnComplete() {
		t.Error("Auto reveal should be enabled")
	}
}
