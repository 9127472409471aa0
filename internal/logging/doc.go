// Package logging assembles structured slog loggers and formatting helpers used
// across metapub.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes helpers so pipeline code tags log lines with the same
// keys (component, run_id, batch, member, event_type). The package also
// provides a no-op logger for tests and a progress sampler that keeps
// row-level progress from flooding the output.
//
// Prefer these constructors over hand-rolled slog setup so new components
// emit data with the same shape as the rest of the pipeline.
package logging
