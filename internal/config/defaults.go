package config

const (
	defaultDataDir                = "~/.local/share/spectral/data"
	defaultMediaDir               = "~/.local/share/spectral/media"
	defaultLogDir                 = "~/.local/share/spectral/logs"
	defaultAPIBind                = "127.0.0.1:7643"
	defaultSearchMaxLimit         = 50
	defaultPublicCacheSecs        = 86400
	defaultGeohashPrecision       = 7
	defaultMaxDistanceMeters      = 100.0
	defaultTimeMatchWindowMinutes = 120
	defaultMaxNoteChars           = 500
	defaultTextGenBaseURL         = "https://api.openai.com/v1"
	defaultTextGenModel           = "gpt-4o-mini"
	defaultTextGenTimeoutSeconds  = 60
	defaultImageGenBaseURL        = "https://api.openai.com/v1"
	defaultImageGenModel          = "dall-e-3"
	defaultImageGenSize           = "1024x1024"
	defaultImageGenQuality        = "standard"
	defaultImageGenSeedBase       = 1887
	defaultImageGenCount          = 3
	defaultImageGenTimeoutSecs    = 40
	defaultSpeechBaseURL          = "https://api.openai.com/v1"
	defaultSpeechVoice            = "onyx"
	defaultSpeechTimeoutSeconds   = 15
	defaultQueuePollInterval      = 5
	defaultErrorRetryInterval     = 10
	defaultVisibilityTimeoutSecs  = 900
	defaultMaxDeliveries          = 3
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			MediaDir: defaultMediaDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		API: API{
			SearchMaxLimit:  defaultSearchMaxLimit,
			PublicCacheSecs: defaultPublicCacheSecs,
		},
		Geo: Geo{
			GeohashPrecision: defaultGeohashPrecision,
		},
		Verification: Verification{
			MaxDistanceMeters:      defaultMaxDistanceMeters,
			TimeMatchWindowMinutes: defaultTimeMatchWindowMinutes,
			MaxNoteChars:           defaultMaxNoteChars,
		},
		TextGen: TextGen{
			BaseURL:        defaultTextGenBaseURL,
			Model:          defaultTextGenModel,
			TimeoutSeconds: defaultTextGenTimeoutSeconds,
		},
		ImageGen: ImageGen{
			BaseURL:        defaultImageGenBaseURL,
			Model:          defaultImageGenModel,
			Size:           defaultImageGenSize,
			Quality:        defaultImageGenQuality,
			SeedBase:       defaultImageGenSeedBase,
			ImageCount:     defaultImageGenCount,
			TimeoutSeconds: defaultImageGenTimeoutSecs,
		},
		Speech: Speech{
			BaseURL:        defaultSpeechBaseURL,
			Voice:          defaultSpeechVoice,
			TimeoutSeconds: defaultSpeechTimeoutSeconds,
		},
		Enhancer: Enhancer{
			QueuePollInterval:        defaultQueuePollInterval,
			ErrorRetryInterval:       defaultErrorRetryInterval,
			VisibilityTimeoutSeconds: defaultVisibilityTimeoutSecs,
			MaxDeliveries:            defaultMaxDeliveries,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
