// Package preflight runs startup readiness checks before the daemon begins
// serving: directory access, moderator token presence, and reachability of
// the external generation services.
package preflight

import (
	"context"
	"fmt"
	"strings"

	"spectral/internal/config"
)

// Result captures the outcome of a single readiness check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

func pass(name, detail string) Result {
	return Result{Name: name, Passed: true, Detail: detail}
}

func fail(name string, err error) Result {
	return Result{Name: name, Passed: false, Detail: err.Error()}
}

// RunAll executes every readiness check and returns the individual results.
// Checks are independent; a failure in one does not stop the rest.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	results := []Result{
		CheckDirectoryAccess("data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("media directory", cfg.Paths.MediaDir),
		CheckDirectoryAccess("log directory", cfg.Paths.LogDir),
		CheckModeratorToken(cfg),
	}
	results = append(results, CheckTextService(ctx, cfg))
	results = append(results, CheckKeyPresence("image service", cfg.ImageGen.APIKey))
	results = append(results, CheckKeyPresence("speech service", cfg.Speech.APIKey))
	return results
}

// Failures filters results down to the checks that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}

// Summarize renders results as one line per check for log or console output.
func Summarize(results []Result) string {
	lines := make([]string, 0, len(results))
	for _, result := range results {
		state := "ok"
		if !result.Passed {
			state = "FAILED"
		}
		lines = append(lines, fmt.Sprintf("%-18s %-6s %s", result.Name, state, result.Detail))
	}
	return strings.Join(lines, "\n")
}
