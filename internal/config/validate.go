package config

import (
	"errors"
	"fmt"

	"spectral/internal/geo"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateGeo(); err != nil {
		return err
	}
	if err := c.validateVerification(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateEnhancer(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.MediaDir == "" {
		return errors.New("paths.media_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.SearchMaxLimit <= 0 {
		return errors.New("api.search_max_limit must be positive")
	}
	if c.API.PublicCacheSecs < 0 {
		return errors.New("api.public_cache_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateGeo() error {
	if c.Geo.GeohashPrecision < geo.MinPrecision || c.Geo.GeohashPrecision > geo.MaxPrecision {
		return fmt.Errorf("geo.geohash_precision must be between %d and %d", geo.MinPrecision, geo.MaxPrecision)
	}
	return nil
}

func (c *Config) validateVerification() error {
	if c.Verification.MaxDistanceMeters <= 0 {
		return errors.New("verification.max_distance_meters must be positive")
	}
	if c.Verification.TimeMatchWindowMinutes <= 0 || c.Verification.TimeMatchWindowMinutes > 720 {
		return errors.New("verification.time_match_window_minutes must be between 1 and 720")
	}
	if c.Verification.MaxNoteChars <= 0 {
		return errors.New("verification.max_note_chars must be positive")
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if err := ensurePositiveMap(map[string]int{
		"textgen.timeout_seconds":  c.TextGen.TimeoutSeconds,
		"imagegen.timeout_seconds": c.ImageGen.TimeoutSeconds,
		"speech.timeout_seconds":   c.Speech.TimeoutSeconds,
		"imagegen.image_count":     c.ImageGen.ImageCount,
	}); err != nil {
		return err
	}
	if c.ImageGen.SeedBase < 0 {
		return errors.New("imagegen.seed_base must be >= 0")
	}
	return nil
}

func (c *Config) validateEnhancer() error {
	if err := ensurePositiveMap(map[string]int{
		"enhancer.queue_poll_interval":        c.Enhancer.QueuePollInterval,
		"enhancer.error_retry_interval":       c.Enhancer.ErrorRetryInterval,
		"enhancer.visibility_timeout_seconds": c.Enhancer.VisibilityTimeoutSeconds,
		"enhancer.max_deliveries":             c.Enhancer.MaxDeliveries,
	}); err != nil {
		return err
	}
	// The queue lease must outlast the slowest possible pipeline run
	// (narrative + illustration + narration timeouts with all retries).
	worstCase := worstCasePipelineSeconds(c)
	if c.Enhancer.VisibilityTimeoutSeconds <= worstCase {
		return fmt.Errorf("enhancer.visibility_timeout_seconds must exceed the worst-case pipeline duration (%d seconds)", worstCase)
	}
	return nil
}

func worstCasePipelineSeconds(c *Config) int {
	const attempts = 3
	const backoffSecs = 3 // 1s + 2s between attempts
	perStep := func(timeout int) int {
		return timeout*attempts + backoffSecs
	}
	total := perStep(c.TextGen.TimeoutSeconds)
	total += perStep(c.ImageGen.TimeoutSeconds) * c.ImageGen.ImageCount
	total += perStep(c.Speech.TimeoutSeconds) * 4 // typical chunk count upper bound
	return total
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
