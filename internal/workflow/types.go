package workflow

import (
	"errors"
	"time"

	"video2notes/internal/checkpoint"
	"video2notes/internal/runconfig"
	"video2notes/internal/stage"
)

var (
	// ErrRunActive is returned by Start while another run is not terminal.
	ErrRunActive = errors.New("a run is already active")
	// ErrNotWaiting rejects a resolution for a stage that is not waiting for input.
	ErrNotWaiting = errors.New("stage is not waiting for input")
	// ErrNoActiveRun is returned by Stop when there is nothing to stop.
	ErrNoActiveRun = errors.New("no active run")
)

// Artifacts are the files a run has produced so far.
type Artifacts = stage.Artifacts

// Status is the lifecycle state of a run.
type Status string

const (
	// StatusIdle is reported before the first run of the process.
	StatusIdle         Status = "idle"
	StatusPending      Status = "pending"
	StatusRunning      Status = "running"
	StatusWaitingInput Status = "waiting_input"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StageStatus is the lifecycle state of one stage within a run.
type StageStatus string

const (
	StagePending      StageStatus = "pending"
	StageRunning      StageStatus = "running"
	StageWaitingInput StageStatus = "waiting_input"
	StageDone         StageStatus = "done"
	StageFailed       StageStatus = "failed"
	StageSkipped      StageStatus = "skipped"
	StageCancelled    StageStatus = "cancelled"
)

// StageKind distinguishes stages that may block on the user.
type StageKind string

const (
	KindAutomatic   StageKind = "automatic"
	KindInteractive StageKind = "interactive"
)

// StageState describes one planned stage.
type StageState struct {
	Name        string      `json:"name"`
	Label       string      `json:"label"`
	Kind        StageKind   `json:"kind"`
	Status      StageStatus `json:"status"`
	BasePercent int         `json:"base_percent"`
	SkipReason  string      `json:"skip_reason,omitempty"`
	Outputs     []string    `json:"outputs,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

func (s StageState) clone() StageState {
	s.Outputs = append([]string(nil), s.Outputs...)
	s.StartedAt = cloneTime(s.StartedAt)
	s.FinishedAt = cloneTime(s.FinishedAt)
	return s
}

// Run is the orchestrator's mutable record of a pipeline execution. It is
// only touched under Manager.mu; callers see Snapshots.
type Run struct {
	ID          string
	Config      runconfig.RunConfig
	Status      Status
	Stages      []StageState
	Current     int
	Percent     int
	Message     string
	Artifacts   Artifacts
	Err         error
	FailedStage string
	StartedAt   time.Time
	FinishedAt  *time.Time

	log      *stage.Tail
	adapters []stage.Adapter
	stopping bool
}

// Snapshot is an immutable copy of a run's state.
type Snapshot struct {
	RunID        string             `json:"run_id,omitempty"`
	Status       Status             `json:"status"`
	VideoPath    string             `json:"video_path,omitempty"`
	CurrentStage string             `json:"current_stage,omitempty"`
	Percent      int                `json:"percent"`
	Message      string             `json:"message,omitempty"`
	Stages       []StageState       `json:"stages,omitempty"`
	Log          []string           `json:"log,omitempty"`
	Checkpoint   *checkpoint.Prompt `json:"checkpoint,omitempty"`
	Artifacts    *Artifacts         `json:"artifacts,omitempty"`
	Error        string             `json:"error,omitempty"`
	FailedStage  string             `json:"failed_stage,omitempty"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	FinishedAt   *time.Time         `json:"finished_at,omitempty"`
}

// Stage returns the named stage from the snapshot.
func (s Snapshot) Stage(name string) (StageState, bool) {
	for _, st := range s.Stages {
		if st.Name == name {
			return st, true
		}
	}
	return StageState{}, false
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
