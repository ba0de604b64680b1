// Package services defines shared utilities consumed by the enhancement stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp encounter IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent API error codes and HTTP statuses.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
