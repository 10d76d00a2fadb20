// Package logging assembles structured slog loggers and formatting helpers used
// across the facade.
//
// It owns the console/JSON handlers, the in-memory stream hub that backs the
// log tail API, and context-aware helpers that tag lines with agreement IDs,
// daemon names, and correlation IDs. A no-op logger is provided for tests and
// wiring code that cannot fail.
package logging
