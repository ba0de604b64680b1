package testsupport

import (
	"path/filepath"
	"testing"

	"spectral/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.MediaDir = filepath.Join(base, "media")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.API.ModeratorToken = "test-moderator-token"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithModeratorToken overrides the moderator bearer token on the test config.
func WithModeratorToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.ModeratorToken = token
	}
}

// WithGeohashPrecision overrides the spatial index precision on the test config.
func WithGeohashPrecision(precision int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Geo.GeohashPrecision = precision
	}
}

// WithEnhancer applies an arbitrary mutation to the enhancer section.
func WithEnhancer(mutate func(*config.Enhancer)) ConfigOption {
	return func(b *configBuilder) {
		mutate(&b.cfg.Enhancer)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
