package ui

import "time"

// Icons (emojis/symbols)
const (
	IconSettings = "⚙"
	IconFolder   = "📁"
)

// Window and layout sizing
const (
	WindowWidth  float32 = 720
	WindowHeight float32 = 520

	LogMinHeight float32 = 160
	MaxLogLines          = 500
)

// Debounce durations
const (
	UIUpdateDebounce = 100 * time.Millisecond
)
