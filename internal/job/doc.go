package job

// Package job runs one download job end to end: plan, idempotent skip of items
// already on disk, transfer with cooperative pause/resume and the two flavours
// of cancellation, loudness normalization from a staging folder, cleanup of
// intermediates, the retried purge of cancelled files, and the state marker.
