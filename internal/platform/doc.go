package platform

// Package platform contains OS integration and filesystem glue: directory
// helpers, reveal-in-file-manager, filename sanitization and the final-path
// computation behind the idempotency check.
