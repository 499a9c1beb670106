package ui

import (
	"os"
	"strings"

	"golang.org/x/text/language"
)

// Localization manages UI text translations
type Localization struct {
	currentLanguage string
	texts           map[string]map[string]string
}

// Text keys for localization
const (
	KeyAppTitle           = "app_title"
	KeyStart              = "start"
	KeyPause              = "pause"
	KeyResume             = "resume"
	KeyCancel             = "cancel"
	KeyCancelAfterCurrent = "cancel_after_current"
	KeySettings           = "settings"
	KeyFile               = "file"
	KeyQuit               = "quit"
	KeyLanguage           = "language"
	KeyOutputDirectory    = "output_directory"
	KeyFormat             = "format"
	KeyQuality            = "quality"
	KeyPlaylist           = "playlist"
	KeyKeepOriginal       = "keep_original"
	KeyNormalize          = "normalize"
	KeyAutoReveal         = "auto_reveal"
	KeySave               = "save"
	KeyBrowse             = "browse"
	KeyEnterURL           = "enter_url"
	KeyInvalidURL         = "invalid_url"
	KeyPleaseEnterURL     = "please_enter_url"
	KeyReady              = "ready"
	KeyKeepItemTitle      = "keep_item_title"
	KeyKeepItemMessage    = "keep_item_message"
	KeyKeep               = "keep"
	KeyDiscard            = "discard"
	KeyJobPaused          = "job_paused"
	KeyJobCancelled       = "job_cancelled"
	KeyJobFailed          = "job_failed"
	KeyJobCompleted       = "job_completed"
	KeyErrorOpeningFile   = "error_opening_file"
)

var supportedLanguages = []language.Tag{language.English, language.Russian, language.Portuguese}

var languageMatcher = language.NewMatcher(supportedLanguages)

// NewLocalization creates a new localization manager
func NewLocalization() *Localization {
	l := &Localization{
		currentLanguage: "en",
		texts:           make(map[string]map[string]string),
	}

	l.initializeTexts()
	return l
}

// SetLanguage sets the current language. "system" picks the closest match to
// the process locale.
func (l *Localization) SetLanguage(lang string) {
	if lang == "system" {
		lang = systemLanguage()
	}

	if _, exists := l.texts[lang]; exists {
		l.currentLanguage = lang
	}
}

// GetText returns localized text for the given key
func (l *Localization) GetText(key string) string {
	if texts, exists := l.texts[l.currentLanguage]; exists {
		if text, found := texts[key]; found {
			return text
		}
	}

	if texts, exists := l.texts["en"]; exists {
		if text, found := texts[key]; found {
			return text
		}
	}

	return key
}

// GetCurrentLanguage returns the current language code
func (l *Localization) GetCurrentLanguage() string {
	return l.currentLanguage
}

// GetAvailableLanguages returns map of available languages with their display names
func (l *Localization) GetAvailableLanguages() map[string]string {
	return map[string]string{
		"en": "English",
		"ru": "Русский",
		"pt": "Português",
	}
}

// systemLanguage maps LC_ALL, LC_MESSAGES or LANG to a supported language
func systemLanguage() string {
	for _, env := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(env); v != "" {
			return matchLocale(v)
		}
	}
	return "en"
}

// matchLocale turns a POSIX locale such as ru_RU.UTF-8 into a language code
func matchLocale(locale string) string {
	locale, _, _ = strings.Cut(locale, ".")
	locale, _, _ = strings.Cut(locale, "@")
	locale = strings.ReplaceAll(locale, "_", "-")
	if locale == "" || locale == "C" || locale == "POSIX" {
		return "en"
	}
	_, index, confidence := languageMatcher.Match(language.Make(locale))
	if confidence == language.No {
		return "en"
	}
	base, _ := supportedLanguages[index].Base()
	return base.String()
}

// initializeTexts initializes all text translations
func (l *Localization) initializeTexts() {
	l.texts["en"] = map[string]string{
		KeyAppTitle:           "YT Audio",
		KeyStart:              "Start",
		KeyPause:              "Pause",
		KeyResume:             "Resume",
		KeyCancel:             "Cancel",
		KeyCancelAfterCurrent: "Stop after current",
		KeySettings:           "Settings",
		KeyFile:               "File",
		KeyQuit:               "Quit",
		KeyLanguage:           "Language",
		KeyOutputDirectory:    "Output Directory",
		KeyFormat:             "Format",
		KeyQuality:            "Quality",
		KeyPlaylist:           "Playlist",
		KeyKeepOriginal:       "Keep original video",
		KeyNormalize:          "Normalize loudness",
		KeyAutoReveal:         "Show file when done",
		KeySave:               "Save",
		KeyBrowse:             "Browse",
		KeyEnterURL:           "Enter YouTube URL (https://youtube.com/watch?v=...)",
		KeyInvalidURL:         "Invalid URL",
		KeyPleaseEnterURL:     "Please enter a URL",
		KeyReady:              "Ready",
		KeyKeepItemTitle:      "Stop after current item",
		KeyKeepItemMessage:    "Keep the file that just finished?\n%s",
		KeyKeep:               "Keep",
		KeyDiscard:            "Discard",
		KeyJobPaused:          "Paused. The state marker was saved.",
		KeyJobCancelled:       "Cancelled",
		KeyJobFailed:          "Failed",
		KeyJobCompleted:       "Completed",
		KeyErrorOpeningFile:   "Error opening file",
	}

	l.texts["ru"] = map[string]string{
		KeyAppTitle:           "YT Аудио",
		KeyStart:              "Старт",
		KeyPause:              "Пауза",
		KeyResume:             "Продолжить",
		KeyCancel:             "Отмена",
		KeyCancelAfterCurrent: "Остановить после текущего",
		KeySettings:           "Настройки",
		KeyFile:               "Файл",
		KeyQuit:               "Выход",
		KeyLanguage:           "Язык",
		KeyOutputDirectory:    "Папка сохранения",
		KeyFormat:             "Формат",
		KeyQuality:            "Качество",
		KeyPlaylist:           "Плейлист",
		KeyKeepOriginal:       "Сохранить исходное видео",
		KeyNormalize:          "Нормализовать громкость",
		KeyAutoReveal:         "Показать файл по завершении",
		KeySave:               "Сохранить",
		KeyBrowse:             "Обзор",
		KeyEnterURL:           "Введите URL YouTube (https://youtube.com/watch?v=...)",
		KeyInvalidURL:         "Неверный URL",
		KeyPleaseEnterURL:     "Пожалуйста, введите URL",
		KeyReady:              "Готово к работе",
		KeyKeepItemTitle:      "Остановка после текущего",
		KeyKeepItemMessage:    "Оставить только что загруженный файл?\n%s",
		KeyKeep:               "Оставить",
		KeyDiscard:            "Удалить",
		KeyJobPaused:          "Пауза. Состояние сохранено.",
		KeyJobCancelled:       "Отменено",
		KeyJobFailed:          "Ошибка",
		KeyJobCompleted:       "Завершено",
		KeyErrorOpeningFile:   "Ошибка открытия файла",
	}

	l.texts["pt"] = map[string]string{
		KeyAppTitle:           "YT Audio",
		KeyStart:              "Iniciar",
		KeyPause:              "Pausar",
		KeyResume:             "Retomar",
		KeyCancel:             "Cancelar",
		KeyCancelAfterCurrent: "Parar após o atual",
		KeySettings:           "Configurações",
		KeyFile:               "Arquivo",
		KeyQuit:               "Sair",
		KeyLanguage:           "Idioma",
		KeyOutputDirectory:    "Diretório de Saída",
		KeyFormat:             "Formato",
		KeyQuality:            "Qualidade",
		KeyPlaylist:           "Playlist",
		KeyKeepOriginal:       "Manter vídeo original",
		KeyNormalize:          "Normalizar volume",
		KeyAutoReveal:         "Mostrar arquivo ao concluir",
		KeySave:               "Salvar",
		KeyBrowse:             "Navegar",
		KeyEnterURL:           "Digite URL do YouTube (https://youtube.com/watch?v=...)",
		KeyInvalidURL:         "URL inválida",
		KeyPleaseEnterURL:     "Por favor, digite uma URL",
		KeyReady:              "Pronto",
		KeyKeepItemTitle:      "Parar após o item atual",
		KeyKeepItemMessage:    "Manter o arquivo recém-concluído?\n%s",
		KeyKeep:               "Manter",
		KeyDiscard:            "Descartar",
		KeyJobPaused:          "Pausado. O estado foi salvo.",
		KeyJobCancelled:       "Cancelado",
		KeyJobFailed:          "Falhou",
		KeyJobCompleted:       "Concluído",
		KeyErrorOpeningFile:   "Erro ao abrir arquivo",
	}
}
