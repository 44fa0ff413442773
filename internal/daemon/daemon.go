package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"video2notes/internal/config"
	"video2notes/internal/deps"
	"video2notes/internal/logging"
	"video2notes/internal/runconfig"
	"video2notes/internal/runstore"
	"video2notes/internal/stage"
	"video2notes/internal/watcher"
	"video2notes/internal/workflow"
)

// Daemon owns the workflow manager for the lifetime of the process and
// enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *runstore.Store
	workflow *workflow.Manager
	inbox    *watcher.Watcher
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running  atomic.Bool
	watching atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Run          workflow.Snapshot
	RunStorePath string
	LockFilePath string
	InboxDir     string
	Watching     bool
}

// Health combines external tool checks with adapter readiness.
type Health struct {
	Ready        bool
	Summary      string
	Dependencies []deps.Status
	Stages       []stage.Health
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *runstore.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	if cfg.Watcher.Enabled {
		d.inbox = watcher.New(cfg, wf, logger)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, begins serving the API and starts the
// inbox watcher when enabled.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another video2notes daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}
	d.cancel = cancel

	if d.inbox != nil {
		d.wg.Add(1)
		d.watching.Store(true)
		go func() {
			defer d.wg.Done()
			defer d.watching.Store(false)
			if err := d.inbox.Run(runCtx); err != nil {
				d.logger.Error("inbox watcher stopped",
					logging.Error(err),
					logging.Alert("watcher_failure"),
					logging.Hint("check paths.inbox_dir permissions"),
				)
			}
		}()
	}

	d.running.Store(true)
	d.logger.Info("video2notes daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.Addr()),
	)
	return nil
}

// Stop cancels any active run, stops serving and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if err := d.workflow.Stop(); err != nil && !errors.Is(err, workflow.ErrNoActiveRun) {
		d.logger.Warn("active run did not stop cleanly", logging.Error(err))
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("video2notes daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.workflow.Events().Close()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Workflow exposes the workflow manager.
func (d *Daemon) Workflow() *workflow.Manager { return d.workflow }

// Addr is the address the API listens on, empty before Start.
func (d *Daemon) Addr() string { return d.api.Addr() }

// StartRun launches a run on the workflow manager.
func (d *Daemon) StartRun(ctx context.Context, rc runconfig.RunConfig) (workflow.Snapshot, error) {
	return d.workflow.Start(ctx, rc)
}

// Runs lists archived runs, newest first.
func (d *Daemon) Runs(ctx context.Context, limit int) ([]runstore.Record, error) {
	return d.store.List(ctx, limit)
}

// Run returns an archived run.
func (d *Daemon) Run(ctx context.Context, id string) (runstore.Record, error) {
	return d.store.Get(ctx, id)
}

// Health checks external binaries and every adapter that reports readiness.
func (d *Daemon) Health(ctx context.Context) Health {
	statuses := deps.CheckBinaries(deps.Requirements(d.cfg))
	stages := d.workflow.Health(ctx)
	ready, summary := deps.Summarize(statuses)
	for _, h := range stages {
		if !h.Ready {
			ready = false
			if summary != "" {
				summary += "; "
			}
			summary += h.Name + ": " + h.Detail
		}
	}
	return Health{Ready: ready, Summary: summary, Dependencies: statuses, Stages: stages}
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Run:          d.workflow.Status(),
		RunStorePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Watching:     d.watching.Load(),
	}
	if d.inbox != nil {
		status.InboxDir = d.inbox.Dir()
	}
	return status
}
