package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"spectral/internal/api"
	"spectral/internal/blob"
	"spectral/internal/config"
	"spectral/internal/enhance"
	"spectral/internal/logging"
	"spectral/internal/preflight"
	"spectral/internal/ratings"
	"spectral/internal/services/imagegen"
	"spectral/internal/services/speech"
	"spectral/internal/services/textgen"
	"spectral/internal/store"
	"spectral/internal/workqueue"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run wires every subsystem together and blocks until the context is
// cancelled or an interrupt arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:   level,
		Format:  cfg.Logging.Format,
		LogDir:  cfg.Paths.LogDir,
		LogFile: "spectrald.log",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer st.Close()

	pidPath := filepath.Join(cfg.Paths.DataDir, "spectrald.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	for _, result := range preflight.RunAll(signalCtx, cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "the daemon will start, but the named subsystem may not work"))
	}

	queue, err := workqueue.New(st.DB(), workqueue.Options{
		VisibilityTimeout: time.Duration(cfg.Enhancer.VisibilityTimeoutSeconds) * time.Second,
		MaxDeliveries:     cfg.Enhancer.MaxDeliveries,
	})
	if err != nil {
		return fmt.Errorf("init work queue: %w", err)
	}

	blobs, err := blob.NewFileStore(cfg.Paths.MediaDir, mediaRoutePrefix)
	if err != nil {
		return fmt.Errorf("init media store: %w", err)
	}

	text := textgen.NewClient(textgen.Config{
		APIKey:         cfg.TextGen.APIKey,
		BaseURL:        cfg.TextGen.BaseURL,
		Model:          cfg.TextGen.Model,
		TimeoutSeconds: cfg.TextGen.TimeoutSeconds,
	})
	images := imagegen.NewClient(imagegen.Config{
		APIKey:         cfg.ImageGen.APIKey,
		BaseURL:        cfg.ImageGen.BaseURL,
		Model:          cfg.ImageGen.Model,
		Size:           cfg.ImageGen.Size,
		Quality:        cfg.ImageGen.Quality,
		TimeoutSeconds: cfg.ImageGen.TimeoutSeconds,
	})
	voice := speech.NewClient(speech.Config{
		APIKey:         cfg.Speech.APIKey,
		BaseURL:        cfg.Speech.BaseURL,
		Voice:          cfg.Speech.Voice,
		TimeoutSeconds: cfg.Speech.TimeoutSeconds,
	})

	manager := enhance.NewManager(cfg, st, queue,
		enhance.NewNarrativeStage(text, logger),
		enhance.NewIllustrationStage(images, blobs, cfg.ImageGen.SeedBase, cfg.ImageGen.ImageCount, logger),
		enhance.NewNarrationStage(voice, blobs, voice.Voice(), logger),
		enhance.NewPublishStage(st, logger),
		logger,
	)

	engine := ratings.NewEngine(st, cfg, logger)
	svc := api.NewService(cfg, st, queue, engine, logger)

	d, err := New(cfg, st, queue, manager, svc, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check api bind address and data directory access"))
		return err
	}
	defer d.Stop()

	<-signalCtx.Done()
	logger.Info("spectral daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
