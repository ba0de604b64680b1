package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"spectral/internal/api"
	"spectral/internal/config"
	"spectral/internal/enhance"
	"spectral/internal/logging"
	"spectral/internal/store"
	"spectral/internal/workqueue"
)

// Daemon coordinates the HTTP server and the enhancement manager and enforces
// single-instance execution per data directory.
type Daemon struct {
	cfg     *config.Config
	log     *slog.Logger
	store   *store.Store
	queue   *workqueue.Queue
	manager *enhance.Manager
	server  *httpServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	Address      string
	DatabasePath string
	LockFilePath string
	Queue        workqueue.Stats
}

// New constructs a daemon with initialized dependencies.
func New(
	cfg *config.Config,
	st *store.Store,
	queue *workqueue.Queue,
	manager *enhance.Manager,
	svc *api.Service,
	logger *slog.Logger,
) (*Daemon, error) {
	if cfg == nil || st == nil || queue == nil || svc == nil {
		return nil, errors.New("daemon requires config, store, queue, and api service")
	}

	d := &Daemon{
		cfg:      cfg,
		log:      logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		queue:    queue,
		manager:  manager,
		lockPath: filepath.Join(cfg.Paths.DataDir, "spectrald.lock"),
	}
	d.lock = flock.New(d.lockPath)
	d.server = newHTTPServer(cfg, svc, d, logger)
	return d, nil
}

// Start acquires the instance lock and launches the enhancement manager and
// the HTTP server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another spectral daemon is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.manager != nil {
		if err := d.manager.Start(runCtx); err != nil {
			d.releaseLock()
			cancel()
			d.cancel = nil
			return fmt.Errorf("start enhancement manager: %w", err)
		}
	}
	if err := d.server.start(runCtx); err != nil {
		if d.manager != nil {
			d.manager.Stop()
		}
		d.releaseLock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.log.Info("spectral daemon started",
		logging.String("address", d.server.addr()),
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"))
	return nil
}

// Stop shuts down the HTTP server and the enhancement manager and releases
// the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	if d.manager != nil {
		d.manager.Stop()
	}
	d.releaseLock()
	d.running.Store(false)
	d.log.Info("spectral daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the bound HTTP address, empty until Start succeeds.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// Status returns current daemon runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.queue.Stats(ctx)
	if err != nil {
		d.log.WarnContext(ctx, "queue stats failed", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		Address:      d.server.addr(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Queue:        stats,
	}
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.log.Warn("failed to release daemon lock", logging.Error(err))
	}
}
