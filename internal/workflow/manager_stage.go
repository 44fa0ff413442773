package workflow

import (
	"context"
	"encoding/json"
	"log/slog"

	"video2notes/internal/checkpoint"
	"video2notes/internal/logging"
	"video2notes/internal/services"
	"video2notes/internal/stage"
)

func (m *Manager) stageStatus(run *Run, index int) StageStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return run.Stages[index].Status
}

func (m *Manager) skipStage(run *Run, logger *slog.Logger, index int) {
	m.mu.Lock()
	st := run.Stages[index]
	run.Current = index
	run.Percent = overallPercent(index, 100)
	run.Message = st.Label + " skipped"
	run.log.Add(run.Message)
	percent := run.Percent
	m.mu.Unlock()

	m.publish(run, st.Name, percent, run.Message+": "+st.SkipReason, "info", false)
	logger.Debug("stage skipped",
		logging.String(logging.FieldStage, st.Name),
		logging.Event("stage_skipped"),
		logging.String("reason", st.SkipReason),
	)
}

// runStage executes one planned stage and commits its artifacts. A non-nil
// error ends the run.
func (m *Manager) runStage(ctx context.Context, run *Run, logger *slog.Logger, index int) error {
	started := m.now()

	m.mu.Lock()
	if run.Status.Terminal() {
		m.mu.Unlock()
		return services.Wrap(services.ErrCancelled, run.Stages[index].Name, "start stage", "run already ended", nil)
	}
	st := &run.Stages[index]
	st.Status = StageRunning
	st.StartedAt = &started
	run.Current = index
	run.Percent = st.BasePercent
	run.Message = st.Label + " started"
	run.log.Add(run.Message)
	adapter := run.adapters[index]
	if m.run == run {
		m.active = adapter
	}
	name, label, kind := st.Name, st.Label, st.Kind
	in := stage.Input{
		RunID:     run.ID,
		Stage:     name,
		Config:    run.Config,
		Artifacts: run.Artifacts.Clone(),
	}
	m.mu.Unlock()

	m.publish(run, name, overallPercent(index, 0), label+" started", "info", false)

	stageCtx := services.WithStage(ctx, name)
	stageLogger := logging.WithContext(stageCtx, logger)
	stageLogger.Info("stage started", logging.Event("stage_start"))

	in.Logger = stageLogger
	in.Progress = m.progressFunc(run, stageLogger, index)
	if kind == KindInteractive {
		in.Checkpoint = m.checkpointFunc(run, stageLogger, index)
	}

	out, err := adapter.Execute(stageCtx, in)
	finished := m.now()

	m.mu.Lock()
	if m.run == run && m.active == adapter {
		m.active = nil
	}
	if run.Status.Terminal() {
		m.mu.Unlock()
		if err == nil {
			err = services.Wrap(services.ErrCancelled, name, "execute", "run ended while stage was running", nil)
		}
		return err
	}
	if err == nil && ctx.Err() != nil {
		err = services.Wrap(services.ErrCancelled, name, "execute", "", ctx.Err())
	}
	if err != nil {
		st.FinishedAt = &finished
		if services.Classify(err) == services.OutcomeCancelled || run.stopping {
			st.Status = StageCancelled
		} else {
			st.Status = StageFailed
		}
		m.mu.Unlock()
		if st.Status == StageFailed {
			stageLogger.Warn("stage failed",
				logging.Event("stage_failed"),
				logging.Duration("stage_duration", finished.Sub(started)),
				logging.Error(err),
			)
		}
		return err
	}
	if out.Artifacts.OutputDir != "" {
		run.Artifacts = out.Artifacts.Clone()
	}
	st.Outputs = append([]string(nil), out.Outputs...)
	st.Status = StageDone
	st.FinishedAt = &finished
	run.Percent = overallPercent(index, 100)
	run.Message = label + " completed"
	run.log.Add(run.Message)
	percent := run.Percent
	rec := m.recordLocked(run)
	m.mu.Unlock()

	m.publish(run, name, percent, label+" completed", "info", false)
	stageLogger.Info("stage completed",
		logging.Event("stage_complete"),
		logging.Duration("stage_duration", finished.Sub(started)),
		logging.Int("outputs", len(out.Outputs)),
	)
	m.save(rec)
	return nil
}

func (m *Manager) progressFunc(run *Run, logger *slog.Logger, index int) stage.ProgressFunc {
	return func(percent int, message string) {
		m.mu.Lock()
		if run.Status.Terminal() {
			m.mu.Unlock()
			return
		}
		if percent >= 0 {
			run.Percent = overallPercent(index, percent)
		}
		if message != "" {
			run.Message = message
			run.log.Add(message)
		}
		overall := run.Percent
		name := run.Stages[index].Name
		m.mu.Unlock()

		if percent < 0 {
			logger.Debug(message, logging.Event("tool_output"))
		} else {
			logger.Info(message,
				logging.Event("stage_progress"),
				logging.Int("percent", overall),
			)
		}
		m.publish(run, name, overall, message, "info", false)
	}
}

func (m *Manager) checkpointFunc(run *Run, logger *slog.Logger, index int) stage.CheckpointFunc {
	return func(ctx context.Context, kind checkpoint.Kind, prompt any) (json.RawMessage, error) {
		m.mu.Lock()
		name := run.Stages[index].Name
		m.mu.Unlock()

		cp, err := m.checkpoints.Open(name, kind, prompt)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, name, "open checkpoint", string(kind), err)
		}
		m.setWaiting(run, index, true)
		message := "Waiting for " + string(kind) + " input"
		m.publish(run, name, m.percent(run), message, "info", false)
		logger.Info("checkpoint opened",
			logging.Event("checkpoint_open"),
			logging.String("kind", string(kind)),
		)

		payload, err := m.checkpoints.Await(ctx, cp, m.cfg.CheckpointTimeout())
		m.setWaiting(run, index, false)
		if err != nil {
			logger.Warn("checkpoint not resolved",
				logging.Event("checkpoint_abandoned"),
				logging.Error(err),
			)
			return nil, err
		}
		m.publish(run, name, m.percent(run), string(kind)+" input received", "info", false)
		logger.Info("checkpoint resolved", logging.Event("checkpoint_resolved"))
		return payload, nil
	}
}

func (m *Manager) setWaiting(run *Run, index int, waiting bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.Status.Terminal() {
		return
	}
	st := &run.Stages[index]
	if waiting {
		st.Status = StageWaitingInput
		run.Status = StatusWaitingInput
		run.Message = "Waiting for input"
		run.log.Add(run.Message)
		return
	}
	if st.Status == StageWaitingInput {
		st.Status = StageRunning
	}
	if run.Status == StatusWaitingInput {
		run.Status = StatusRunning
	}
}

func (m *Manager) percent(run *Run) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return run.Percent
}
