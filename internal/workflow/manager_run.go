package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"video2notes/internal/events"
	"video2notes/internal/logging"
	"video2notes/internal/runconfig"
	"video2notes/internal/runstore"
	"video2notes/internal/services"
	"video2notes/internal/stage"
)

// Start validates rc and launches a run in the background. It fails with
// ErrRunActive while another run is not terminal and with a
// services.ConfigError when rc is invalid; in both cases no run is created.
func (m *Manager) Start(ctx context.Context, rc runconfig.RunConfig) (Snapshot, error) {
	if m.activeRun() {
		return Snapshot{}, ErrRunActive
	}
	if err := rc.Validate(m.cfg); err != nil {
		m.logger.Warn("run configuration rejected",
			logging.Error(err),
			logging.Event("run_rejected"),
			logging.Hint("fix the listed fields and start again"),
		)
		return Snapshot{}, err
	}

	now := m.now()
	states, adapters := buildPlan(m.stages, rc, m.cfg)
	run := &Run{
		ID:        uuid.NewString(),
		Config:    rc,
		Status:    StatusPending,
		Stages:    states,
		Current:   -1,
		StartedAt: now,
		log:       stage.NewTail(runLogLines),
		adapters:  adapters,
	}
	run.Artifacts = Artifacts{
		OutputDir: rc.ResolveOutputDir(now),
		VideoPath: rc.VideoPath,
		VideoName: rc.VideoName(),
	}
	if err := os.MkdirAll(run.Artifacts.OutputDir, 0o755); err != nil {
		return Snapshot{}, services.Wrap(services.ErrConfiguration, "", "create output dir", run.Artifacts.OutputDir, err)
	}

	m.mu.Lock()
	if m.run != nil && !m.run.Status.Terminal() {
		m.mu.Unlock()
		return Snapshot{}, ErrRunActive
	}
	runCtx, cancel := context.WithCancel(services.WithRunID(context.WithoutCancel(ctx), run.ID))
	done := make(chan struct{})
	m.run = run
	m.cancel = cancel
	m.done = done
	m.active = nil
	run.Status = StatusRunning
	run.Message = "Run started"
	run.log.Add(run.Message)
	snap := m.snapshotLocked()
	rec := m.recordLocked(run)
	m.mu.Unlock()

	m.checkpoints.Reset()
	m.publish(run, "", 0, run.Message, "info", false)

	logger, logPath, closer, err := m.runLogs.Open(m.logger, run.ID, run.Artifacts.VideoName, now)
	if err != nil {
		m.logger.Warn("run log unavailable", logging.Error(err))
	}
	logger = logging.WithContext(runCtx, logger)
	logger.Info("run started",
		logging.Event("run_start"),
		logging.String("video_path", rc.VideoPath),
		logging.String("output_dir", run.Artifacts.OutputDir),
		logging.String("run_log", logPath),
	)
	m.save(rec)

	go m.execute(runCtx, run, logger, closer, done)
	return snap, nil
}

// Stop cancels the active run and waits for it to settle. The run ends
// cancelled; when the active stage ignores cancellation for longer than the
// grace period plus slack, the run is marked cancelled anyway and Stop
// returns a timeout error.
func (m *Manager) Stop() error {
	m.mu.Lock()
	run := m.run
	if run == nil || run.Status.Terminal() {
		m.mu.Unlock()
		return ErrNoActiveRun
	}
	run.stopping = true
	cancel := m.cancel
	adapter := m.active
	done := m.done
	m.mu.Unlock()

	m.logger.Info("stop requested",
		logging.String(logging.FieldRunID, run.ID),
		logging.Event("run_stop"),
	)
	if cancel != nil {
		cancel()
	}
	if adapter != nil {
		adapter.Cancel()
	}
	m.checkpoints.CancelAll()

	timer := time.NewTimer(m.stopTimeout())
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	err := services.Wrap(services.ErrTimeout, "", "stop", fmt.Sprintf("stage did not exit within %s", m.stopTimeout()), nil)
	m.logger.Error("run did not stop in time; marking cancelled",
		logging.String(logging.FieldRunID, run.ID),
		logging.Alert("stop_timeout"),
		logging.Error(err),
	)
	m.finish(run, m.logger, services.ErrCancelled, "")
	return err
}

// Wait blocks until the current run is terminal or ctx ends and returns its
// final snapshot.
func (m *Manager) Wait(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return m.Status(), nil
	}
	select {
	case <-done:
		return m.Status(), nil
	case <-ctx.Done():
		return m.Status(), ctx.Err()
	}
}

func (m *Manager) activeRun() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run != nil && !m.run.Status.Terminal()
}

func (m *Manager) execute(ctx context.Context, run *Run, logger *slog.Logger, closer io.Closer, done chan struct{}) {
	defer close(done)
	if closer != nil {
		defer closer.Close()
	}

	for i := range run.Stages {
		if ctx.Err() != nil {
			m.finish(run, logger, services.Wrap(services.ErrCancelled, "", "run", "stopped", ctx.Err()), "")
			return
		}
		if m.stageStatus(run, i) == StageSkipped {
			m.skipStage(run, logger, i)
			continue
		}
		if err := m.runStage(ctx, run, logger, i); err != nil {
			m.finish(run, logger, err, run.Stages[i].Name)
			return
		}
	}
	if ctx.Err() != nil {
		m.finish(run, logger, services.Wrap(services.ErrCancelled, "", "run", "stopped", ctx.Err()), "")
		return
	}
	m.finish(run, logger, nil, "")
}

// finish moves run to its terminal state exactly once.
func (m *Manager) finish(run *Run, logger *slog.Logger, runErr error, failedStage string) {
	now := m.now()

	m.mu.Lock()
	if run.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	status := StatusCompleted
	switch {
	case runErr == nil && !run.stopping:
	case run.stopping || services.Classify(runErr) == services.OutcomeCancelled:
		status = StatusCancelled
	default:
		status = StatusFailed
	}
	for i := range run.Stages {
		st := &run.Stages[i]
		if st.Status != StageRunning && st.Status != StageWaitingInput {
			continue
		}
		st.FinishedAt = &now
		if status == StatusFailed {
			st.Status = StageFailed
		} else {
			st.Status = StageCancelled
		}
	}
	run.Status = status
	run.FinishedAt = &now
	m.active = nil

	var message, level string
	switch status {
	case StatusCompleted:
		run.Percent = 100
		message = "Run completed"
		level = "info"
	case StatusCancelled:
		message = "Run cancelled"
		level = "warn"
	default:
		run.Err = runErr
		run.FailedStage = failedStage
		message = failureMessage(runErr, run.log.Lines(), m.cfg.Workflow.LogTailLines)
		level = "error"
	}
	run.Message = firstLine(message)
	run.log.Add(run.Message)
	percent := run.Percent
	rec := m.recordLocked(run)
	m.mu.Unlock()

	m.publish(run, failedStage, percent, message, level, true)
	switch status {
	case StatusCompleted:
		logger.Info("run completed",
			logging.Event("run_complete"),
			logging.Duration("run_duration", now.Sub(run.StartedAt)),
		)
	case StatusCancelled:
		logger.Info("run cancelled",
			logging.Event("run_cancelled"),
			logging.Duration("run_duration", now.Sub(run.StartedAt)),
		)
	default:
		logger.Error("run failed",
			logging.Event("run_failed"),
			logging.String(logging.FieldStage, failedStage),
			logging.Alert("stage_failure"),
			logging.Hint("see the run log for the stage output"),
			logging.Error(runErr),
		)
	}
	m.save(rec)
}

// failureMessage returns the error text with the last tailLines of output
// appended, unless the error already carries its own tail.
func failureMessage(err error, runLog []string, tailLines int) string {
	if err == nil {
		return "run failed"
	}
	msg := err.Error()
	if len(services.LogTail(err)) > 0 {
		return msg
	}
	if tailLines <= 0 {
		tailLines = stage.DefaultTailLines
	}
	if len(runLog) > tailLines {
		runLog = runLog[len(runLog)-tailLines:]
	}
	if len(runLog) == 0 {
		return msg
	}
	return msg + "\n--- last output ---\n" + strings.Join(runLog, "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (m *Manager) publish(run *Run, stageName string, percent int, message, level string, terminal bool) events.Event {
	m.mu.Lock()
	status := run.Status
	m.mu.Unlock()
	return m.bus.Publish(events.Event{
		RunID:    run.ID,
		Stage:    stageName,
		Percent:  percent,
		Message:  message,
		Status:   string(status),
		Level:    level,
		Terminal: terminal,
	})
}

func (m *Manager) save(rec runstore.Record) {
	if m.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.archive.Save(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("failed to archive run",
			logging.String(logging.FieldRunID, rec.ID),
			logging.Error(err),
			logging.Hint("check the run store database"),
		)
	}
}
