package workflow

import (
	"encoding/json"
	"fmt"

	"video2notes/internal/checkpoint"
	"video2notes/internal/runstore"
)

// Status returns a snapshot of the current or most recent run. Before the
// first run it reports StatusIdle.
func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if snap.Status != StatusWaitingInput {
		return snap
	}
	for _, p := range m.checkpoints.Pending() {
		if p.Stage == snap.CurrentStage {
			prompt := p
			snap.Checkpoint = &prompt
			break
		}
	}
	return snap
}

// ResolveCheckpoint delivers the user's answer to the stage waiting on it.
// A stage that already received its answer yields
// checkpoint.ErrAlreadyResolved; any other stage that is not waiting yields
// ErrNotWaiting.
func (m *Manager) ResolveCheckpoint(stageName string, payload json.RawMessage) error {
	m.mu.Lock()
	waiting := false
	if m.run != nil {
		for _, st := range m.run.Stages {
			if st.Name == stageName && st.Status == StageWaitingInput {
				waiting = true
				break
			}
		}
	}
	m.mu.Unlock()

	if !waiting {
		if m.checkpoints.Answered(stageName) {
			return fmt.Errorf("%s: %w", stageName, checkpoint.ErrAlreadyResolved)
		}
		return fmt.Errorf("%s: %w", stageName, ErrNotWaiting)
	}
	return m.checkpoints.Resolve(stageName, payload)
}

func (m *Manager) snapshotLocked() Snapshot {
	run := m.run
	if run == nil {
		return Snapshot{Status: StatusIdle}
	}
	started := run.StartedAt
	art := run.Artifacts.Clone()
	snap := Snapshot{
		RunID:       run.ID,
		Status:      run.Status,
		VideoPath:   run.Config.VideoPath,
		Percent:     run.Percent,
		Message:     run.Message,
		Stages:      make([]StageState, len(run.Stages)),
		Log:         run.log.Lines(),
		Artifacts:   &art,
		FailedStage: run.FailedStage,
		StartedAt:   &started,
		FinishedAt:  cloneTime(run.FinishedAt),
	}
	for i, st := range run.Stages {
		snap.Stages[i] = st.clone()
	}
	if run.Current >= 0 && run.Current < len(run.Stages) {
		snap.CurrentStage = run.Stages[run.Current].Name
	}
	if run.Err != nil {
		snap.Error = run.Err.Error()
	}
	return snap
}

func (m *Manager) recordLocked(run *Run) runstore.Record {
	rec := runstore.Record{
		ID:          run.ID,
		VideoPath:   run.Config.VideoPath,
		OutputDir:   run.Artifacts.OutputDir,
		Status:      string(run.Status),
		FailedStage: run.FailedStage,
		StartedAt:   run.StartedAt,
		FinishedAt:  cloneTime(run.FinishedAt),
		Stages:      make([]runstore.StageRecord, 0, len(run.Stages)),
	}
	if run.Err != nil {
		rec.Error = run.Err.Error()
	}
	if raw, err := json.Marshal(run.Config); err == nil {
		rec.Config = raw
	}
	if raw, err := json.Marshal(run.Artifacts); err == nil {
		rec.Artifacts = raw
	}
	for _, st := range run.Stages {
		rec.Stages = append(rec.Stages, runstore.StageRecord{
			Name:       st.Name,
			Status:     string(st.Status),
			Outputs:    append([]string(nil), st.Outputs...),
			StartedAt:  cloneTime(st.StartedAt),
			FinishedAt: cloneTime(st.FinishedAt),
		})
	}
	return rec
}
