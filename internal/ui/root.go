package ui

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/ytget/yt-audio/internal/config"
	"github.com/ytget/yt-audio/internal/job"
	"github.com/ytget/yt-audio/internal/model"
	"github.com/ytget/yt-audio/internal/platform"
)

// JobFactory builds a controller for a job descriptor. The UI supplies the
// confirmer and its hooks; the factory wires the fetcher and normalizer.
type JobFactory func(desc model.Job, confirmer job.Confirmer, hooks job.Hooks) (*job.Controller, error)

// RootUI represents the main window: one job at a time
type RootUI struct {
	window       fyne.Window
	app          fyne.App
	settings     *config.Settings
	localization *Localization
	newJob       JobFactory
	logger       *slog.Logger

	urlEntry       *widget.Entry
	dirEntry       *widget.Entry
	browseBtn      *widget.Button
	formatSelect   *widget.Select
	qualitySelect  *widget.Select
	playlistCheck  *widget.Check
	keepCheck      *widget.Check
	normalizeCheck *widget.Check
	startBtn       *widget.Button
	pauseBtn       *widget.Button
	cancelBtn      *widget.Button
	afterBtn       *widget.Button
	progressBar    *widget.ProgressBar
	itemLabel      *widget.Label
	statusLabel    *widget.Label
	logList        *widget.List

	mu           sync.Mutex
	ctrl         *job.Controller
	tracker      *job.Tracker
	done         chan struct{}
	logLines     []string
	lastProgress time.Time
}

// NewRootUI creates and initializes the main UI
func NewRootUI(window fyne.Window, app fyne.App, settings *config.Settings, newJob JobFactory, logger *slog.Logger) *RootUI {
	if logger == nil {
		logger = slog.Default()
	}

	localization := NewLocalization()
	localization.SetLanguage(settings.GetLanguage())

	ui := &RootUI{
		window:       window,
		app:          app,
		settings:     settings,
		localization: localization,
		newJob:       newJob,
		logger:       logger,
	}

	window.SetTitle(localization.GetText(KeyAppTitle))
	window.SetCloseIntercept(ui.onClose)

	ui.setupUI()
	return ui
}

// setupUI creates and arranges all UI components
func (ui *RootUI) setupUI() {
	ui.createMenu()
	l := ui.localization

	ui.urlEntry = widget.NewEntry()
	ui.urlEntry.SetPlaceHolder(l.GetText(KeyEnterURL))
	ui.urlEntry.Validator = validateURL
	ui.urlEntry.OnSubmitted = func(string) { ui.onStartClick() }
	ui.startBtn = widget.NewButton(l.GetText(KeyStart), ui.onStartClick)
	ui.startBtn.Importance = widget.HighImportance

	settingsBtn := widget.NewButton(IconSettings, ui.onShowSettings)
	settingsBtn.Importance = widget.LowImportance
	urlRow := container.NewBorder(nil, nil, settingsBtn, ui.startBtn, ui.urlEntry)

	ui.dirEntry = widget.NewEntry()
	ui.dirEntry.SetText(ui.settings.GetOutputDirectory())
	ui.browseBtn = widget.NewButton(IconFolder+" "+l.GetText(KeyBrowse), ui.onBrowse)
	dirRow := container.NewBorder(nil, nil, nil, ui.browseBtn, ui.dirEntry)

	ui.formatSelect = widget.NewSelect(ui.settings.GetFormatOptions(), nil)
	ui.formatSelect.SetSelected(ui.settings.GetFormat())
	ui.qualitySelect = widget.NewSelect(ui.settings.GetQualityOptions(), nil)
	ui.qualitySelect.SetSelected(ui.settings.GetQuality())

	ui.playlistCheck = widget.NewCheck(l.GetText(KeyPlaylist), nil)
	ui.playlistCheck.SetChecked(ui.settings.GetPlaylist())
	ui.keepCheck = widget.NewCheck(l.GetText(KeyKeepOriginal), nil)
	ui.keepCheck.SetChecked(ui.settings.GetKeepOriginal())
	ui.normalizeCheck = widget.NewCheck(l.GetText(KeyNormalize), nil)
	ui.normalizeCheck.SetChecked(ui.settings.GetNormalize())

	optionsRow := container.NewHBox(
		widget.NewLabel(l.GetText(KeyFormat)), ui.formatSelect,
		widget.NewLabel(l.GetText(KeyQuality)), ui.qualitySelect,
		ui.playlistCheck, ui.keepCheck, ui.normalizeCheck,
	)

	ui.pauseBtn = widget.NewButton(l.GetText(KeyPause), ui.onPauseResume)
	ui.cancelBtn = widget.NewButton(l.GetText(KeyCancel), ui.onCancel)
	ui.cancelBtn.Importance = widget.DangerImportance
	ui.afterBtn = widget.NewButton(l.GetText(KeyCancelAfterCurrent), ui.onCancelAfterCurrent)
	controlsRow := container.NewHBox(ui.pauseBtn, ui.afterBtn, ui.cancelBtn)

	ui.progressBar = widget.NewProgressBar()
	ui.itemLabel = widget.NewLabel("")
	ui.statusLabel = widget.NewLabel(l.GetText(KeyReady))
	statusRow := container.NewBorder(nil, nil, ui.statusLabel, ui.itemLabel)

	ui.logList = widget.NewList(
		func() int {
			ui.mu.Lock()
			defer ui.mu.Unlock()
			return len(ui.logLines)
		},
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			ui.mu.Lock()
			line := ""
			if id < len(ui.logLines) {
				line = ui.logLines[id]
			}
			ui.mu.Unlock()
			obj.(*widget.Label).SetText(line)
		},
	)
	logScroll := container.NewVScroll(ui.logList)
	logScroll.SetMinSize(fyne.NewSize(0, LogMinHeight))

	top := container.NewVBox(urlRow, dirRow, optionsRow, controlsRow, ui.progressBar, statusRow)
	ui.window.SetContent(container.NewBorder(top, nil, nil, nil, logScroll))
	ui.setRunning(false)
}

// createMenu creates the application menu
func (ui *RootUI) createMenu() {
	settingsItem := fyne.NewMenuItem(ui.localization.GetText(KeySettings), ui.onShowSettings)
	quitItem := fyne.NewMenuItem(ui.localization.GetText(KeyQuit), ui.onClose)
	quitItem.IsQuit = true

	languageMenu := fyne.NewMenu(ui.localization.GetText(KeyLanguage))
	for code, name := range ui.localization.GetAvailableLanguages() {
		langCode := code
		langItem := fyne.NewMenuItem(name, func() {
			ui.onLanguageChange(langCode)
		})
		langItem.Checked = ui.localization.GetCurrentLanguage() == code
		languageMenu.Items = append(languageMenu.Items, langItem)
	}

	ui.window.SetMainMenu(fyne.NewMainMenu(
		fyne.NewMenu(ui.localization.GetText(KeyFile), settingsItem, fyne.NewMenuItemSeparator(), quitItem),
		languageMenu,
	))
}

// onLanguageChange handles language change
func (ui *RootUI) onLanguageChange(langCode string) {
	ui.localization.SetLanguage(langCode)
	ui.settings.SetLanguage(langCode)
	ui.refreshUITexts()
	ui.createMenu()
}

// refreshUITexts updates all UI texts with current language
func (ui *RootUI) refreshUITexts() {
	l := ui.localization
	ui.window.SetTitle(l.GetText(KeyAppTitle))
	ui.urlEntry.SetPlaceHolder(l.GetText(KeyEnterURL))
	ui.startBtn.SetText(l.GetText(KeyStart))
	ui.browseBtn.SetText(IconFolder + " " + l.GetText(KeyBrowse))
	ui.playlistCheck.Text = l.GetText(KeyPlaylist)
	ui.keepCheck.Text = l.GetText(KeyKeepOriginal)
	ui.normalizeCheck.Text = l.GetText(KeyNormalize)
	ui.cancelBtn.SetText(l.GetText(KeyCancel))
	ui.afterBtn.SetText(l.GetText(KeyCancelAfterCurrent))
	ui.refreshPauseButton()
	ui.window.Content().Refresh()
}

// validateURL accepts an empty field; anything else must be http(s)
func validateURL(input string) error {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parsedURL, err := url.Parse(strings.TrimSpace(input))
	if err != nil {
		return err
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("URL must start with http:// or https://")
	}
	return nil
}

// cleanURL strips control characters pasted along with the URL
func cleanURL(raw string) string {
	s := strings.NewReplacer("\n", "", "\r", "", "\t", " ").Replace(raw)
	return strings.TrimSpace(s)
}

// saveForm persists the form so the next start and the next launch reuse it
func (ui *RootUI) saveForm() {
	if dir := strings.TrimSpace(ui.dirEntry.Text); dir != "" {
		ui.settings.SetOutputDirectory(dir)
	}
	ui.settings.SetFormat(ui.formatSelect.Selected)
	ui.settings.SetQuality(ui.qualitySelect.Selected)
	ui.settings.SetPlaylist(ui.playlistCheck.Checked)
	ui.settings.SetKeepOriginal(ui.keepCheck.Checked)
	ui.settings.SetNormalize(ui.normalizeCheck.Checked)
}

// onStartClick builds a controller from the form and runs it in the background
func (ui *RootUI) onStartClick() {
	if ui.isActive() {
		return
	}
	l := ui.localization
	urlText := cleanURL(ui.urlEntry.Text)
	if urlText == "" {
		ui.setStatus(l.GetText(KeyPleaseEnterURL), widget.WarningImportance)
		return
	}
	if err := validateURL(urlText); err != nil {
		ui.setStatus(l.GetText(KeyInvalidURL)+": "+err.Error(), widget.DangerImportance)
		return
	}

	ui.saveForm()
	ctrl, err := ui.newJob(ui.settings.Job(urlText), ui, ui.hooks())
	if err != nil {
		ui.setStatus(err.Error(), widget.DangerImportance)
		return
	}
	tracker := job.NewTracker(ctrl)
	ctrl.AttachHooks(tracker.Hooks())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	ui.mu.Lock()
	ui.ctrl = ctrl
	ui.tracker = tracker
	ui.done = done
	ui.logLines = nil
	ui.mu.Unlock()

	ui.logList.Refresh()
	ui.progressBar.SetValue(0)
	ui.itemLabel.SetText("")
	ui.setStatus(job.StatusStarting, phaseImportance(model.PhaseRunning))
	ui.setRunning(true)

	go func() {
		defer close(done)
		phase := ctrl.Start(ctx)
		cancel()
		fyne.Do(func() { ui.onFinished(phase) })
	}()
}

// onFinished restores the idle form and reports the outcome
func (ui *RootUI) onFinished(phase model.Phase) {
	ui.setRunning(false)
	l := ui.localization

	switch phase {
	case model.PhaseCompleted:
		ui.progressBar.SetValue(1)
		ui.setStatus(l.GetText(KeyJobCompleted), phaseImportance(phase))
		ui.revealLastFile()
	case model.PhaseCancelled:
		ui.setStatus(l.GetText(KeyJobCancelled), phaseImportance(phase))
	default:
		msg := l.GetText(KeyJobFailed)
		if snap, ok := ui.snapshot(); ok && snap.LastError != "" {
			msg += ": " + snap.LastError
		}
		ui.setStatus(msg, phaseImportance(phase))
	}
}

func (ui *RootUI) revealLastFile() {
	if !ui.settings.GetAutoRevealOnComplete() {
		return
	}
	snap, ok := ui.snapshot()
	if !ok || snap.LastFile == "" {
		return
	}
	if err := platform.OpenFileInManager(snap.LastFile); err != nil {
		ui.appendLog(ui.localization.GetText(KeyErrorOpeningFile) + ": " + err.Error())
	}
}

func (ui *RootUI) onPauseResume() {
	ctrl := ui.controller()
	if ctrl == nil {
		return
	}
	if ctrl.Phase() == model.PhasePaused {
		ctrl.Resume()
	} else if ctrl.Pause() {
		ui.setStatus(ui.localization.GetText(KeyJobPaused), phaseImportance(model.PhasePaused))
	}
	ui.refreshPauseButton()
}

func (ui *RootUI) onCancel() {
	if ctrl := ui.controller(); ctrl != nil {
		ctrl.Cancel()
		ui.afterBtn.Disable()
	}
}

func (ui *RootUI) onCancelAfterCurrent() {
	if ctrl := ui.controller(); ctrl != nil {
		ctrl.CancelAfterCurrentItem()
		ui.afterBtn.Disable()
		ui.pauseBtn.Disable()
	}
}

// onClose checkpoints an active job so the marker survives the exit
func (ui *RootUI) onClose() {
	if ctrl := ui.controller(); ctrl != nil && ctrl.Phase().IsActive() {
		if err := ctrl.Checkpoint(); err != nil {
			ui.logger.Warn("checkpoint on close failed", slog.String("error", err.Error()))
		}
	}
	ui.window.Close()
}

func (ui *RootUI) onBrowse() {
	dialog.ShowFolderOpen(func(dir fyne.ListableURI, err error) {
		if err != nil || dir == nil {
			return
		}
		ui.dirEntry.SetText(dir.Path())
	}, ui.window)
}

// onShowSettings shows the settings dialog
func (ui *RootUI) onShowSettings() {
	ShowSettingsDialog(ui.window, ui.settings, ui.localization, func() {
		ui.localization.SetLanguage(ui.settings.GetLanguage())
		ui.dirEntry.SetText(ui.settings.GetOutputDirectory())
		ui.refreshUITexts()
		ui.createMenu()
	})
}

// ConfirmKeep asks, on the UI thread, whether the item finished under a
// cancel-after-current request is kept. An ended context keeps it.
func (ui *RootUI) ConfirmKeep(ctx context.Context, path string) bool {
	answer := make(chan bool, 1)
	l := ui.localization
	fyne.Do(func() {
		d := dialog.NewConfirm(
			l.GetText(KeyKeepItemTitle),
			fmt.Sprintf(l.GetText(KeyKeepItemMessage), filepath.Base(path)),
			func(keep bool) { answer <- keep },
			ui.window,
		)
		d.SetConfirmText(l.GetText(KeyKeep))
		d.SetDismissText(l.GetText(KeyDiscard))
		d.Show()
	})
	select {
	case keep := <-answer:
		return keep
	case <-ctx.Done():
		return true
	}
}

// hooks marshals controller callbacks onto the UI thread
func (ui *RootUI) hooks() job.Hooks {
	return job.Hooks{
		Progress: func(percent float64, index, count int) {
			if !ui.shouldUpdateProgress(percent) {
				return
			}
			fyne.Do(func() {
				ui.progressBar.SetValue(percent / 100)
				if count > 0 {
					ui.itemLabel.SetText(fmt.Sprintf("%d/%d", index, count))
				}
			})
		},
		Status: func(text string) {
			fyne.Do(func() {
				ui.statusLabel.SetText(text)
				ui.refreshPauseButton()
			})
		},
		FileFinished: func(path string) {
			ui.appendLog("✓ " + filepath.Base(path))
		},
		Error: func(message string) {
			ui.appendLog("✗ " + message)
		},
		Log: ui.appendLog,
	}
}

// shouldUpdateProgress debounces progress redraws; the final value always passes
func (ui *RootUI) shouldUpdateProgress(percent float64) bool {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	now := time.Now()
	if percent < 100 && now.Sub(ui.lastProgress) < UIUpdateDebounce {
		return false
	}
	ui.lastProgress = now
	return true
}

func (ui *RootUI) appendLog(line string) {
	if line == "" {
		return
	}
	ui.mu.Lock()
	ui.logLines = append(ui.logLines, line)
	if len(ui.logLines) > MaxLogLines {
		ui.logLines = ui.logLines[len(ui.logLines)-MaxLogLines:]
	}
	ui.mu.Unlock()
	fyne.Do(func() {
		ui.logList.Refresh()
		ui.logList.ScrollToBottom()
	})
}

func (ui *RootUI) setStatus(text string, importance widget.Importance) {
	ui.statusLabel.Importance = importance
	ui.statusLabel.SetText(text)
}

// setRunning toggles the form against the job controls
func (ui *RootUI) setRunning(running bool) {
	form := []fyne.Disableable{
		ui.urlEntry, ui.dirEntry, ui.browseBtn, ui.formatSelect, ui.qualitySelect,
		ui.playlistCheck, ui.keepCheck, ui.normalizeCheck, ui.startBtn,
	}
	controls := []fyne.Disableable{ui.pauseBtn, ui.cancelBtn, ui.afterBtn}
	for _, w := range form {
		setEnabled(w, !running)
	}
	for _, w := range controls {
		setEnabled(w, running)
	}
	ui.refreshPauseButton()
}

func (ui *RootUI) refreshPauseButton() {
	ctrl := ui.controller()
	if ctrl != nil && ctrl.Phase() == model.PhasePaused {
		ui.pauseBtn.SetText(ui.localization.GetText(KeyResume))
		return
	}
	ui.pauseBtn.SetText(ui.localization.GetText(KeyPause))
}

func setEnabled(w fyne.Disableable, enabled bool) {
	if enabled {
		w.Enable()
	} else {
		w.Disable()
	}
}

func (ui *RootUI) controller() *job.Controller {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	return ui.ctrl
}

func (ui *RootUI) isActive() bool {
	ctrl := ui.controller()
	return ctrl != nil && ctrl.Phase().IsActive()
}

func (ui *RootUI) snapshot() (model.Snapshot, bool) {
	ui.mu.Lock()
	tracker := ui.tracker
	ui.mu.Unlock()
	if tracker == nil {
		return model.Snapshot{}, false
	}
	return tracker.Snapshot(), true
}

// wait blocks until the current job goroutine has returned
func (ui *RootUI) wait() {
	ui.mu.Lock()
	done := ui.done
	ui.mu.Unlock()
	if done != nil {
		<-done
	}
}
