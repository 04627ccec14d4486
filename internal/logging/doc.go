// Package logging assembles structured slog loggers and formatting helpers used
// across captionminer.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so engine code can tag log
// lines with deck IDs, card modes, and correlation IDs. A bounded StreamHub
// keeps recent events in memory for the daemon's log tail endpoint. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
