// Package logging assembles the structured slog loggers used across the
// fermata host and worker binaries.
//
// It owns the console and JSON handlers, centralizes level plumbing, and
// exposes small attr helpers so supervisor and dispatcher code tag log lines
// uniformly. A no-op logger is provided for tests and wiring code that cannot
// fail.
//
// Prefer these constructors over hand-rolled slog setup so both processes
// emit diagnostics with the same shape.
package logging
