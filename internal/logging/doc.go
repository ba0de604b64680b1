// Package logging wraps log/slog with the attribute helpers, standardized
// field names, and context plumbing used across spectral. Handlers are built
// once at startup (console or JSON, optionally teed to a log file) and passed
// down as *slog.Logger values.
package logging
