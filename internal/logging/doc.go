// Package logging configures searchsync's slog output: JSON lines to a
// size-rotated file, optionally tee'd to a coloured console handler, and a
// viewer that tails and filters those files.
package logging
