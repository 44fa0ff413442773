package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"video2notes/internal/config"
	"video2notes/internal/logging"
	"video2notes/internal/runconfig"
	"video2notes/internal/workflow"
)

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".avi":  {},
	".mkv":  {},
	".webm": {},
	".m4v":  {},
	".flv":  {},
}

// IsVideo reports whether path has a supported video extension.
func IsVideo(path string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Starter launches a run; the workflow manager satisfies it.
type Starter interface {
	Start(ctx context.Context, rc runconfig.RunConfig) (workflow.Snapshot, error)
}

// Watcher monitors one inbox directory.
type Watcher struct {
	dir      string
	settle   time.Duration
	template runconfig.RunConfig
	starter  Starter
	logger   *slog.Logger
	now      func() time.Time

	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.Mutex
	pending map[string]time.Time
	started map[string]struct{}
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithSettle overrides watcher.settle_seconds.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithTemplate sets the run options used for every inbox video. VideoPath
// and OutputDir are always replaced.
func WithTemplate(rc runconfig.RunConfig) Option {
	return func(w *Watcher) { w.template = rc }
}

// New constructs a watcher for cfg.Paths.InboxDir.
func New(cfg *config.Config, starter Starter, logger *slog.Logger, opts ...Option) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Watcher{
		dir:      cfg.Paths.InboxDir,
		settle:   time.Duration(cfg.Watcher.SettleSeconds) * time.Second,
		template: runconfig.Default(),
		starter:  starter,
		logger:   logging.NewComponentLogger(logger, "inbox-watcher"),
		now:      time.Now,
		ready:    make(chan struct{}),
		pending:  make(map[string]time.Time),
		started:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.settle <= 0 {
		w.settle = time.Second
	}
	return w
}

// Dir is the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Ready is closed once the directory is being watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches until ctx ends. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if strings.TrimSpace(w.dir) == "" {
		return errors.New("inbox directory not configured")
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("ensure inbox directory: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("add watch path: %w", err)
	}
	w.readyOnce.Do(func() { close(w.ready) })

	w.logger.Info("inbox watcher started",
		logging.String("dir", w.dir),
		logging.Duration("settle", w.settle),
	)

	interval := max(w.settle/4, 50*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped")
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			w.observe(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Warn("inbox watcher error", logging.Error(err))
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) observe(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !IsVideo(event.Name) {
		w.logger.Debug("ignoring non-video file", logging.String("path", event.Name))
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if event.Has(fsnotify.Create) {
		delete(w.started, event.Name)
	} else if _, done := w.started[event.Name]; done {
		return
	}
	if _, known := w.pending[event.Name]; !known {
		w.logger.Info("new video detected", logging.String("path", event.Name))
	}
	w.pending[event.Name] = w.now()
}

// due returns settled paths, oldest first.
func (w *Watcher) due() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	var paths []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.settle {
			paths = append(paths, path)
		}
	}
	sort.Slice(paths, func(i, j int) bool {
		return w.pending[paths[i]].Before(w.pending[paths[j]])
	})
	return paths
}

func (w *Watcher) flush(ctx context.Context) {
	for _, path := range w.due() {
		if _, err := os.Stat(path); err != nil {
			w.forget(path, false)
			continue
		}
		rc := w.template
		rc.VideoPath = path
		rc.OutputDir = ""
		snap, err := w.starter.Start(ctx, rc)
		switch {
		case err == nil:
			w.forget(path, true)
			w.logger.Info("inbox run started",
				logging.String("path", path),
				logging.String(logging.FieldRunID, snap.RunID),
				logging.Event("inbox_start"),
			)
			return
		case errors.Is(err, workflow.ErrRunActive):
			w.logger.Debug("run active; inbox video stays queued", logging.String("path", path))
			return
		default:
			w.forget(path, false)
			w.logger.Warn("inbox video rejected",
				logging.String("path", path),
				logging.Error(err),
				logging.Hint("fix the file or watcher defaults and copy it again"),
			)
		}
	}
}

func (w *Watcher) forget(path string, started bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, path)
	if started {
		w.started[path] = struct{}{}
	}
}
