package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"spectral/internal/config"
	"spectral/internal/services/retryhttp"
	"spectral/internal/services/textgen"
)

const textServiceTimeout = 30 * time.Second

// CheckDirectoryAccess verifies the directory exists and the daemon can read,
// write, and traverse it.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		return fail(name, fmt.Errorf("stat %s: %w", path, err))
	}
	if !info.IsDir() {
		return fail(name, fmt.Errorf("%s is not a directory", path))
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fail(name, fmt.Errorf("access %s: %w", path, err))
	}
	return pass(name, path)
}

// CheckModeratorToken verifies a moderator token is configured so the
// moderation endpoints are usable.
func CheckModeratorToken(cfg *config.Config) Result {
	const name = "moderator token"
	if strings.TrimSpace(cfg.API.ModeratorToken) == "" {
		return fail(name, errors.New("api.moderator_token is empty; moderation endpoints will refuse all requests"))
	}
	return pass(name, "configured")
}

// CheckTextService issues a minimal completion against the text-generation
// service. A single attempt is used so a dead service fails fast instead of
// exhausting the retry budget.
func CheckTextService(ctx context.Context, cfg *config.Config) Result {
	const name = "text service"
	if strings.TrimSpace(cfg.TextGen.APIKey) == "" {
		return fail(name, errors.New("textgen.api_key is empty"))
	}

	client := textgen.NewClient(textgen.Config{
		APIKey:         cfg.TextGen.APIKey,
		BaseURL:        cfg.TextGen.BaseURL,
		Model:          cfg.TextGen.Model,
		TimeoutSeconds: cfg.TextGen.TimeoutSeconds,
	}, retryhttp.WithRetryMaxAttempts(1))

	checkCtx, cancel := context.WithTimeout(ctx, textServiceTimeout)
	defer cancel()

	if err := client.HealthCheck(checkCtx); err != nil {
		return fail(name, summarizeServiceError(err))
	}
	return pass(name, "reachable")
}

// CheckKeyPresence verifies an API key is configured for a generation service
// that has no cheap health endpoint.
func CheckKeyPresence(name, apiKey string) Result {
	if strings.TrimSpace(apiKey) == "" {
		return fail(name, errors.New("api key is empty"))
	}
	return pass(name, "key configured")
}

func summarizeServiceError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("no response within %s", textServiceTimeout)
	}
	return err
}
