package job

import "context"

// Hooks is the callback contract exposed to front ends. Any field may be nil.
// Hooks fire on the worker goroutine, except Status and Log which are also
// fired by Pause and Resume on the caller's goroutine, so implementations must
// be safe for concurrent use.
type Hooks struct {
	// Progress reports a clamped percent in [0,100]; index and count are the
	// 1-based playlist position, or 0 when unknown.
	Progress     func(percent float64, index, count int)
	Status       func(text string)
	FileFinished func(path string)
	Error        func(message string)
	Log          func(text string)
}

// Chain returns hooks that call h first and then next
func (h Hooks) Chain(next Hooks) Hooks {
	return Hooks{
		Progress: func(percent float64, index, count int) {
			if h.Progress != nil {
				h.Progress(percent, index, count)
			}
			if next.Progress != nil {
				next.Progress(percent, index, count)
			}
		},
		Status:       chainString(h.Status, next.Status),
		FileFinished: chainString(h.FileFinished, next.FileFinished),
		Error:        chainString(h.Error, next.Error),
		Log:          chainString(h.Log, next.Log),
	}
}

func chainString(a, b func(string)) func(string) {
	return func(s string) {
		if a != nil {
			a(s)
		}
		if b != nil {
			b(s)
		}
	}
}

// Confirmer asks whether a just-finished item should be kept after a
// cancel-after-current request
type Confirmer interface {
	ConfirmKeep(ctx context.Context, path string) bool
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(ctx context.Context, path string) bool

// ConfirmKeep calls f
func (f ConfirmFunc) ConfirmKeep(ctx context.Context, path string) bool {
	return f(ctx, path)
}

// AlwaysKeep keeps every item
var AlwaysKeep Confirmer = ConfirmFunc(func(context.Context, string) bool { return true })

// AlwaysDiscard discards every item
var AlwaysDiscard Confirmer = ConfirmFunc(func(context.Context, string) bool { return false })
