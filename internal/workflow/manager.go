package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"video2notes/internal/checkpoint"
	"video2notes/internal/config"
	"video2notes/internal/events"
	"video2notes/internal/logging"
	"video2notes/internal/runstore"
	"video2notes/internal/stage"
)

// runLogLines bounds the log buffer kept on each run.
const runLogLines = 200

// StopSlack is added to the stop grace period while Stop waits for the run.
const StopSlack = 5 * time.Second

// Archive persists run records.
type Archive interface {
	Save(ctx context.Context, rec runstore.Record) error
}

// Manager coordinates a single pipeline run at a time.
type Manager struct {
	cfg         *config.Config
	stages      StageSet
	logger      *slog.Logger
	bus         *events.Bus
	checkpoints *checkpoint.Manager
	archive     Archive
	runLogs     *RunLogger
	now         func() time.Time
	slack       time.Duration

	mu     sync.Mutex
	run    *Run
	active stage.Adapter
	cancel context.CancelFunc
	done   chan struct{}
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithEventBus shares an existing bus instead of creating one.
func WithEventBus(bus *events.Bus) ManagerOption {
	return func(m *Manager) {
		if bus != nil {
			m.bus = bus
		}
	}
}

// WithCheckpoints shares an existing checkpoint manager.
func WithCheckpoints(cp *checkpoint.Manager) ManagerOption {
	return func(m *Manager) {
		if cp != nil {
			m.checkpoints = cp
		}
	}
}

// WithArchive records finished runs.
func WithArchive(archive Archive) ManagerOption {
	return func(m *Manager) { m.archive = archive }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, stages StageSet, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:     cfg,
		stages:  stages,
		logger:  logging.NewComponentLogger(logger, "workflow-manager"),
		runLogs: NewRunLogger(cfg),
		now:     time.Now,
		slack:   StopSlack,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus == nil {
		m.bus = events.NewBus(cfg.Workflow.EventBuffer)
	}
	if m.checkpoints == nil {
		m.checkpoints = checkpoint.NewManager()
	}
	return m
}

// Events exposes the progress bus for subscribers.
func (m *Manager) Events() *events.Bus { return m.bus }

// Checkpoints exposes the checkpoint manager.
func (m *Manager) Checkpoints() *checkpoint.Manager { return m.checkpoints }

// Health reports readiness for every registered adapter that can check it.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	var out []stage.Health
	for _, def := range pipeline {
		adapter := def.adapter(m.stages)
		if checker, ok := adapter.(stage.HealthChecker); ok {
			out = append(out, checker.HealthCheck(ctx))
		}
	}
	return out
}

func (m *Manager) stopTimeout() time.Duration {
	return m.cfg.StopGrace() + m.slack
}
