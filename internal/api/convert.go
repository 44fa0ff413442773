package api

import (
	"time"

	"video2notes/internal/checkpoint"
	"video2notes/internal/deps"
	"video2notes/internal/events"
	"video2notes/internal/runstore"
	"video2notes/internal/stage"
	"video2notes/internal/workflow"
)

// FromSnapshot converts a workflow snapshot into its transport form.
func FromSnapshot(snap workflow.Snapshot) RunStatus {
	out := RunStatus{
		RunID:        snap.RunID,
		Status:       string(snap.Status),
		VideoPath:    snap.VideoPath,
		CurrentStage: snap.CurrentStage,
		Percent:      snap.Percent,
		Message:      snap.Message,
		Log:          append([]string(nil), snap.Log...),
		Error:        snap.Error,
		FailedStage:  snap.FailedStage,
		StartedAt:    formatTimePtr(snap.StartedAt),
		FinishedAt:   formatTimePtr(snap.FinishedAt),
	}
	if len(snap.Stages) > 0 {
		out.Stages = make([]StageStatus, 0, len(snap.Stages))
		for _, st := range snap.Stages {
			out.Stages = append(out.Stages, StageStatus{
				Name:        st.Name,
				Label:       st.Label,
				Kind:        string(st.Kind),
				Status:      string(st.Status),
				BasePercent: st.BasePercent,
				SkipReason:  st.SkipReason,
				Outputs:     append([]string(nil), st.Outputs...),
				StartedAt:   formatTimePtr(st.StartedAt),
				FinishedAt:  formatTimePtr(st.FinishedAt),
			})
		}
	}
	if snap.Checkpoint != nil {
		cp := FromPrompt(*snap.Checkpoint)
		out.Checkpoint = &cp
	}
	if snap.Artifacts != nil {
		out.Artifacts = fromArtifacts(*snap.Artifacts)
	}
	return out
}

func fromArtifacts(a workflow.Artifacts) *Artifacts {
	return &Artifacts{
		OutputDir:      a.OutputDir,
		VideoName:      a.VideoName,
		Segments:       append([]string(nil), a.Segments...),
		AudioPath:      a.AudioPath,
		ROIFile:        a.ROIFile,
		SlidesDir:      a.SlidesDir,
		SlidesJSON:     a.SlidesJSON,
		VocabularyFile: a.VocabularyFile,
		TranscriptJSON: a.TranscriptJSON,
		NotesFile:      a.NotesFile,
		LabeledNotes:   a.LabeledNotes,
		RefinedNotes:   a.RefinedNotes,
	}
}

// FromPrompt converts an open checkpoint.
func FromPrompt(p checkpoint.Prompt) CheckpointPrompt {
	return CheckpointPrompt{
		Stage:    p.Stage,
		Kind:     string(p.Kind),
		Prompt:   p.Prompt,
		OpenedAt: formatTime(p.OpenedAt),
		Deadline: formatTimePtr(p.Deadline),
	}
}

// FromPrompts converts a list of open checkpoints, never returning nil.
func FromPrompts(prompts []checkpoint.Prompt) []CheckpointPrompt {
	out := make([]CheckpointPrompt, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, FromPrompt(p))
	}
	return out
}

// FromEvent converts a bus event.
func FromEvent(evt events.Event) Event {
	return Event{
		Sequence:  evt.Sequence,
		Timestamp: formatTime(evt.Timestamp),
		RunID:     evt.RunID,
		Stage:     evt.Stage,
		Percent:   evt.Percent,
		Message:   evt.Message,
		Status:    evt.Status,
		Level:     evt.Level,
		Terminal:  evt.Terminal,
	}
}

// FromEvents converts a batch of bus events, never returning nil.
func FromEvents(evts []events.Event) []Event {
	out := make([]Event, 0, len(evts))
	for _, evt := range evts {
		out = append(out, FromEvent(evt))
	}
	return out
}

// FromRecord converts an archived run to its summary.
func FromRecord(rec runstore.Record) RunSummary {
	return RunSummary{
		ID:              rec.ID,
		VideoPath:       rec.VideoPath,
		OutputDir:       rec.OutputDir,
		Status:          rec.Status,
		FailedStage:     rec.FailedStage,
		Error:           rec.Error,
		StartedAt:       formatTime(rec.StartedAt),
		FinishedAt:      formatTimePtr(rec.FinishedAt),
		DurationSeconds: rec.Duration().Round(time.Millisecond).Seconds(),
	}
}

// FromRecordDetail converts an archived run including its stages.
func FromRecordDetail(rec runstore.Record) RunDetail {
	detail := RunDetail{
		RunSummary: FromRecord(rec),
		Stages:     make([]RunStage, 0, len(rec.Stages)),
		Config:     rec.Config,
		Artifacts:  rec.Artifacts,
	}
	for _, st := range rec.Stages {
		detail.Stages = append(detail.Stages, RunStage{
			Name:       st.Name,
			Status:     st.Status,
			Outputs:    append([]string(nil), st.Outputs...),
			StartedAt:  formatTimePtr(st.StartedAt),
			FinishedAt: formatTimePtr(st.FinishedAt),
		})
	}
	return detail
}

// FromDependencies converts dependency check results.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FromStageHealth converts adapter readiness reports.
func FromStageHealth(health []stage.Health) []StageHealth {
	out := make([]StageHealth, len(health))
	for i, h := range health {
		out[i] = StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail}
	}
	return out
}

// ParseTime parses a timestamp produced by this package. It returns the zero
// time for an empty or malformed value.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
