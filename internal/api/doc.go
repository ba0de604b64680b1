// Package api implements the application service behind the public HTTP
// surface and the CLI: submission, discovery, rating, verification, and the
// moderation operations that drive the encounter state machine.
package api
