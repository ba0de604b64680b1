package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	MediaDir string `toml:"media_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
}

// API contains public HTTP surface settings.
type API struct {
	ModeratorToken  string `toml:"moderator_token"`
	SearchMaxLimit  int    `toml:"search_max_limit"`
	PublicCacheSecs int    `toml:"public_cache_seconds"`
}

// Geo contains geospatial indexing settings.
type Geo struct {
	GeohashPrecision int `toml:"geohash_precision"`
}

// Verification contains settings for on-site re-verification checks.
type Verification struct {
	MaxDistanceMeters      float64 `toml:"max_distance_meters"`
	TimeMatchWindowMinutes int     `toml:"time_match_window_minutes"`
	MaxNoteChars           int     `toml:"max_note_chars"`
}

// TextGen contains configuration for the narrative text-generation service.
type TextGen struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ImageGen contains configuration for the illustration image-generation service.
type ImageGen struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Size           string `toml:"size"`
	Quality        string `toml:"quality"`
	SeedBase       int64  `toml:"seed_base"`
	ImageCount     int    `toml:"image_count"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Speech contains configuration for the narration speech-synthesis service.
type Speech struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Voice          string `toml:"voice"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Enhancer contains configuration for the enhancement workflow manager and
// its work queue.
type Enhancer struct {
	QueuePollInterval        int `toml:"queue_poll_interval"`
	ErrorRetryInterval       int `toml:"error_retry_interval"`
	VisibilityTimeoutSeconds int `toml:"visibility_timeout_seconds"`
	MaxDeliveries            int `toml:"max_deliveries"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for spectral.
//
// Configuration sections by subsystem:
//   - Paths: data, media, and log directories plus API bind address
//   - API: moderator token and public surface limits
//   - Geo: geohash precision for the spatial index
//   - Verification: proximity and time-of-day matching thresholds
//   - TextGen / ImageGen / Speech: external generation service connections
//   - Enhancer: workflow polling, queue visibility, and redelivery limits
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	API          API          `toml:"api"`
	Geo          Geo          `toml:"geo"`
	Verification Verification `toml:"verification"`
	TextGen      TextGen      `toml:"textgen"`
	ImageGen     ImageGen     `toml:"imagegen"`
	Speech       Speech       `toml:"speech"`
	Enhancer     Enhancer     `toml:"enhancer"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/spectral/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("spectral.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.MediaDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
