package config

import "strings"

// normalize expands path fields and trims string settings so the rest of the
// codebase never has to re-clean configuration values.
func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.DataDir, &c.Paths.MediaDir, &c.Paths.LogDir} {
		expanded, err := expandPath(strings.TrimSpace(*field))
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.API.ModeratorToken = strings.TrimSpace(c.API.ModeratorToken)

	c.TextGen.APIKey = strings.TrimSpace(c.TextGen.APIKey)
	c.TextGen.BaseURL = strings.TrimSpace(c.TextGen.BaseURL)
	c.TextGen.Model = strings.TrimSpace(c.TextGen.Model)

	c.ImageGen.APIKey = strings.TrimSpace(c.ImageGen.APIKey)
	c.ImageGen.BaseURL = strings.TrimSpace(c.ImageGen.BaseURL)
	c.ImageGen.Model = strings.TrimSpace(c.ImageGen.Model)
	c.ImageGen.Size = strings.TrimSpace(c.ImageGen.Size)
	c.ImageGen.Quality = strings.TrimSpace(c.ImageGen.Quality)

	c.Speech.APIKey = strings.TrimSpace(c.Speech.APIKey)
	c.Speech.BaseURL = strings.TrimSpace(c.Speech.BaseURL)
	c.Speech.Voice = strings.TrimSpace(c.Speech.Voice)

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	return nil
}
