package fetch

// Package fetch drives yt-dlp (built with github.com/lrstanley/go-ytdlp) for a
// single job: a no-download plan call that lists the items a URL resolves to,
// and a run call that streams progress and post-processing events back to a
// Handler synchronously on the caller's goroutine.
