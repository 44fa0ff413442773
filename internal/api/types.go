package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// RunStatus describes the current or most recent run.
type RunStatus struct {
	RunID        string            `json:"runId,omitempty"`
	Status       string            `json:"status"`
	VideoPath    string            `json:"videoPath,omitempty"`
	CurrentStage string            `json:"currentStage,omitempty"`
	Percent      int               `json:"percent"`
	Message      string            `json:"message,omitempty"`
	Stages       []StageStatus     `json:"stages,omitempty"`
	Log          []string          `json:"log,omitempty"`
	Checkpoint   *CheckpointPrompt `json:"checkpoint,omitempty"`
	Artifacts    *Artifacts        `json:"artifacts,omitempty"`
	Error        string            `json:"error,omitempty"`
	FailedStage  string            `json:"failedStage,omitempty"`
	StartedAt    string            `json:"startedAt,omitempty"`
	FinishedAt   string            `json:"finishedAt,omitempty"`
}

// StageStatus captures one planned stage of a run.
type StageStatus struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Kind        string   `json:"kind"`
	Status      string   `json:"status"`
	BasePercent int      `json:"basePercent"`
	SkipReason  string   `json:"skipReason,omitempty"`
	Outputs     []string `json:"outputs,omitempty"`
	StartedAt   string   `json:"startedAt,omitempty"`
	FinishedAt  string   `json:"finishedAt,omitempty"`
}

// Artifacts lists the files a run has produced so far.
type Artifacts struct {
	OutputDir      string   `json:"outputDir"`
	VideoName      string   `json:"videoName,omitempty"`
	Segments       []string `json:"segments,omitempty"`
	AudioPath      string   `json:"audioPath,omitempty"`
	ROIFile        string   `json:"roiFile,omitempty"`
	SlidesDir      string   `json:"slidesDir,omitempty"`
	SlidesJSON     string   `json:"slidesJson,omitempty"`
	VocabularyFile string   `json:"vocabularyFile,omitempty"`
	TranscriptJSON string   `json:"transcriptJson,omitempty"`
	NotesFile      string   `json:"notesFile,omitempty"`
	LabeledNotes   string   `json:"labeledNotes,omitempty"`
	RefinedNotes   string   `json:"refinedNotes,omitempty"`
}

// CheckpointPrompt is an open checkpoint waiting for the user.
type CheckpointPrompt struct {
	Stage    string          `json:"stage"`
	Kind     string          `json:"kind"`
	Prompt   json.RawMessage `json:"prompt"`
	OpenedAt string          `json:"openedAt"`
	Deadline string          `json:"deadline,omitempty"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool      `json:"running"`
	PID          int       `json:"pid"`
	RunStorePath string    `json:"runStorePath"`
	LockFilePath string    `json:"lockFilePath"`
	InboxDir     string    `json:"inboxDir,omitempty"`
	Watching     bool      `json:"watching"`
	Run          RunStatus `json:"run"`
}

// HealthResponse reports external tools and stage readiness.
type HealthResponse struct {
	Ready        bool               `json:"ready"`
	Summary      string             `json:"summary"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Stages       []StageHealth      `json:"stages"`
}

// StartRunResponse is returned when a run is accepted.
type StartRunResponse struct {
	Run RunStatus `json:"run"`
}

// RunSummary is one archived run.
type RunSummary struct {
	ID              string  `json:"id"`
	VideoPath       string  `json:"videoPath"`
	OutputDir       string  `json:"outputDir,omitempty"`
	Status          string  `json:"status"`
	FailedStage     string  `json:"failedStage,omitempty"`
	Error           string  `json:"error,omitempty"`
	StartedAt       string  `json:"startedAt"`
	FinishedAt      string  `json:"finishedAt,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// RunStage is a stage outcome of an archived run.
type RunStage struct {
	Name       string   `json:"name"`
	Status     string   `json:"status"`
	Outputs    []string `json:"outputs,omitempty"`
	StartedAt  string   `json:"startedAt,omitempty"`
	FinishedAt string   `json:"finishedAt,omitempty"`
}

// RunDetail is an archived run with its stages and recorded configuration.
type RunDetail struct {
	RunSummary
	Stages    []RunStage      `json:"stages"`
	Config    json.RawMessage `json:"config,omitempty"`
	Artifacts json.RawMessage `json:"artifacts,omitempty"`
}

// RunListResponse wraps archived runs, newest first.
type RunListResponse struct {
	Runs []RunSummary `json:"runs"`
}

// RunDetailResponse wraps a single archived run.
type RunDetailResponse struct {
	Run RunDetail `json:"run"`
}

// CheckpointListResponse lists open checkpoints.
type CheckpointListResponse struct {
	Checkpoints []CheckpointPrompt `json:"checkpoints"`
}

// Event is a progress event in transport form.
type Event struct {
	Sequence  uint64 `json:"sequence"`
	Timestamp string `json:"ts"`
	RunID     string `json:"runId,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Percent   int    `json:"percent"`
	Message   string `json:"message"`
	Status    string `json:"status"`
	Level     string `json:"level,omitempty"`
	Terminal  bool   `json:"terminal,omitempty"`
}

// EventStreamResponse returns events after a cursor. Next is the cursor to
// pass as since on the following request.
type EventStreamResponse struct {
	Events []Event `json:"events"`
	Next   uint64  `json:"next"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}
