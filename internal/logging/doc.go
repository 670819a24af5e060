// Package logging assembles structured slog loggers and formatting helpers used
// across tmcore components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so store and provider code can
// tag log lines with job GUIDs, language pairs, channels, and correlation IDs.
// The package also provides a no-op logger for tests and wiring code that
// cannot fail.
package logging
