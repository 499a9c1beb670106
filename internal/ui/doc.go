package ui

// Package ui contains the Fyne desktop front end. It drives a single job
// controller: the form builds the job descriptor, the buttons map to pause,
// resume and the two cancel modes, and controller hooks are marshalled onto the
// UI thread with fyne.Do. All UI strings are localized via Localization.
