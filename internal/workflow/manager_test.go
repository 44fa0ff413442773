package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video2notes/internal/checkpoint"
	"video2notes/internal/config"
	"video2notes/internal/events"
	"video2notes/internal/runconfig"
	"video2notes/internal/services"
	"video2notes/internal/stage"
	"video2notes/internal/testsupport"
)

type stubAdapter struct {
	execute   func(ctx context.Context, in stage.Input) (stage.Outcome, error)
	cancelled atomic.Int32
}

func (s *stubAdapter) Execute(ctx context.Context, in stage.Input) (stage.Outcome, error) {
	return s.execute(ctx, in)
}

func (s *stubAdapter) Cancel() { s.cancelled.Add(1) }

// produce returns an adapter that reports halfway progress and records path
// through set.
func produce(path string, set func(*stage.Artifacts, string)) *stubAdapter {
	return &stubAdapter{execute: func(_ context.Context, in stage.Input) (stage.Outcome, error) {
		in.Report(50, "halfway")
		art := in.Artifacts
		set(&art, path)
		return stage.Outcome{Artifacts: art, Outputs: []string{path}}, nil
	}}
}

func waitForCtx() *stubAdapter {
	return &stubAdapter{execute: func(ctx context.Context, in stage.Input) (stage.Outcome, error) {
		<-ctx.Done()
		return stage.Outcome{}, services.Wrap(services.ErrCancelled, in.Stage, "wait", "", ctx.Err())
	}}
}

func newRunConfig(t *testing.T, cfg *config.Config) runconfig.RunConfig {
	t.Helper()
	video := filepath.Join(testsupport.BaseDir(cfg), "lecture.mp4")
	testsupport.WriteFile(t, video, 16)
	rc := runconfig.Default()
	rc.VideoPath = video
	rc.SkipROI = true
	rc.DoLabelSpeakers = false
	rc.OutputDir = filepath.Join(testsupport.BaseDir(cfg), "out")
	return rc
}

func newTestManager(cfg *config.Config, set StageSet, opts ...ManagerOption) *Manager {
	return NewManager(cfg, set, nil, opts...)
}

func waitDone(t *testing.T, m *Manager) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := m.Wait(ctx)
	require.NoError(t, err)
	require.True(t, snap.Status.Terminal(), "run still %s", snap.Status)
	return snap
}

func waitForStatus(t *testing.T, m *Manager, status Status) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = m.Status()
		return snap.Status == status
	}, 5*time.Second, 10*time.Millisecond, "never reached %s", status)
	return snap
}

func allEvents(m *Manager) []events.Event {
	evts, _ := m.Events().Tail(10000)
	return evts
}

func TestStatusIdleBeforeFirstRun(t *testing.T) {
	m := newTestManager(testsupport.NewConfig(t), StageSet{})
	snap := m.Status()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Empty(t, snap.RunID)
	assert.ErrorIs(t, m.Stop(), ErrNoActiveRun)
}

func TestRunCompletesAndCommitsArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.AutoAcceptSlides = true

	var preprocessInput stage.Input
	preprocess := &stubAdapter{execute: func(_ context.Context, in stage.Input) (stage.Outcome, error) {
		preprocessInput = in
		art := in.Artifacts
		art.AudioPath = filepath.Join(art.OutputDir, "lecture.wav")
		return stage.Outcome{Artifacts: art, Outputs: []string{art.AudioPath}}, nil
	}}
	var notesInput stage.Input
	generate := &stubAdapter{execute: func(_ context.Context, in stage.Input) (stage.Outcome, error) {
		notesInput = in
		art := in.Artifacts
		art.NotesFile = filepath.Join(art.OutputDir, "lecture_notes.md")
		return stage.Outcome{Artifacts: art}, nil
	}}
	set := StageSet{
		Preprocess:    preprocess,
		ExtractSlides: produce("slides.json", func(a *stage.Artifacts, p string) { a.SlidesJSON = p }),
		Transcribe:    produce("transcript.json", func(a *stage.Artifacts, p string) { a.TranscriptJSON = p }),
		GenerateNotes: generate,
		LabelSpeakers: produce("never", func(a *stage.Artifacts, p string) { a.LabeledNotes = p }),
	}
	m := newTestManager(cfg, set)

	rc := newRunConfig(t, cfg)
	started, err := m.Start(context.Background(), rc)
	require.NoError(t, err)
	require.NotEmpty(t, started.RunID)

	snap := waitDone(t, m)
	require.Equal(t, StatusCompleted, snap.Status, snap.Error)
	assert.Equal(t, 100, snap.Percent)
	assert.Equal(t, started.RunID, snap.RunID)

	split, _ := snap.Stage(StageSplit)
	assert.Equal(t, StageSkipped, split.Status)
	assert.Equal(t, "do_split is false", split.SkipReason)
	label, _ := snap.Stage(StageLabelSpeakers)
	assert.Equal(t, StageSkipped, label.Status)
	refine, _ := snap.Stage(StageRefineNotes)
	assert.Equal(t, StageSkipped, refine.Status)
	assert.Equal(t, "do_refine_notes is false", refine.SkipReason)
	transcribe, _ := snap.Stage(StageTranscribe)
	assert.Equal(t, StageDone, transcribe.Status)
	assert.Equal(t, []string{"transcript.json"}, transcribe.Outputs)
	assert.NotNil(t, transcribe.StartedAt)
	assert.NotNil(t, transcribe.FinishedAt)

	assert.Nil(t, preprocessInput.Checkpoint, "skip_roi makes preprocess automatic")
	assert.Equal(t, rc.OutputDir, preprocessInput.Artifacts.OutputDir)
	assert.Equal(t, "lecture", preprocessInput.Artifacts.VideoName)
	assert.Equal(t, "transcript.json", notesInput.Artifacts.TranscriptJSON)
	assert.Equal(t, "slides.json", notesInput.Artifacts.SlidesJSON)

	require.NotNil(t, snap.Artifacts)
	assert.Equal(t, filepath.Join(rc.OutputDir, "lecture_notes.md"), snap.Artifacts.NotesFile)
	assert.Equal(t, filepath.Join(rc.OutputDir, "lecture.wav"), snap.Artifacts.AudioPath)
	assert.Empty(t, snap.Artifacts.LabeledNotes)
	assert.DirExists(t, rc.OutputDir)

	evts := allEvents(m)
	require.NotEmpty(t, evts)
	last := evts[len(evts)-1]
	assert.True(t, last.Terminal)
	assert.Equal(t, string(StatusCompleted), last.Status)
	assert.Equal(t, 100, last.Percent)
	prev := 0
	for _, evt := range evts {
		assert.Equal(t, started.RunID, evt.RunID)
		assert.GreaterOrEqual(t, evt.Percent, prev, "percent went backwards at %q", evt.Message)
		prev = evt.Percent
	}
	assert.Contains(t, messages(evts), "halfway")
}

func messages(evts []events.Event) []string {
	out := make([]string, len(evts))
	for i, evt := range evts {
		out[i] = evt.Message
	}
	return out
}

func TestProgressMapsOntoStageWindow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reported := make(chan struct{})
	release := make(chan struct{})
	transcribe := &stubAdapter{execute: func(_ context.Context, in stage.Input) (stage.Outcome, error) {
		in.Report(50, "aligning")
		in.Line("whisperx: chunk 3/8")
		close(reported)
		<-release
		return stage.Outcome{Artifacts: in.Artifacts}, nil
	}}
	m := newTestManager(cfg, StageSet{Transcribe: transcribe})
	_, err := m.Start(context.Background(), newRunConfig(t, cfg))
	require.NoError(t, err)

	<-reported
	snap := m.Status()
	assert.Equal(t, StageTranscribe, snap.CurrentStage)
	assert.Equal(t, 60, snap.Percent, "half of the 50..70 window")
	assert.Equal(t, "whisperx: chunk 3/8", snap.Message)
	assert.Contains(t, snap.Log, "aligning")
	close(release)
	assert.Equal(t, StatusCompleted, waitDone(t, m).Status)
}

func TestInteractiveStageWaitsForResolution(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var got checkpoint.SpeakerNames
	label := &stubAdapter{execute: func(ctx context.Context, in stage.Input) (stage.Outcome, error) {
		prompt := checkpoint.SpeakersPrompt{Speakers: []checkpoint.SpeakerCandidate{{ID: "SPEAKER_00"}}}
		if err := in.Ask(ctx, checkpoint.KindSpeakers, prompt, &got); err != nil {
			return stage.Outcome{}, err
		}
		art := in.Artifacts
		art.LabeledNotes = "labeled.md"
		return stage.Outcome{Artifacts: art}, nil
	}}
	m := newTestManager(cfg, StageSet{LabelSpeakers: label})
	rc := newRunConfig(t, cfg)
	rc.DoLabelSpeakers = true
	_, err := m.Start(context.Background(), rc)
	require.NoError(t, err)

	err = m.ResolveCheckpoint(StageTranscribe, json.RawMessage(`{"names":{}}`))
	assert.ErrorIs(t, err, ErrNotWaiting)

	snap := waitForStatus(t, m, StatusWaitingInput)
	assert.Equal(t, StageLabelSpeakers, snap.CurrentStage)
	require.NotNil(t, snap.Checkpoint)
	assert.Equal(t, checkpoint.KindSpeakers, snap.Checkpoint.Kind)
	st, _ := snap.Stage(StageLabelSpeakers)
	assert.Equal(t, StageWaitingInput, st.Status)

	err = m.ResolveCheckpoint(StageLabelSpeakers, json.RawMessage(`{"names":{"SPEAKER_07":"Bob"}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Equal(t, StatusWaitingInput, m.Status().Status, "invalid answer keeps the checkpoint open")

	require.NoError(t, m.ResolveCheckpoint(StageLabelSpeakers, json.RawMessage(`{"names":{"SPEAKER_00":"Ada"}}`)))
	final := waitDone(t, m)
	require.Equal(t, StatusCompleted, final.Status, final.Error)
	assert.Equal(t, "Ada", got.Name("SPEAKER_00"))
	assert.Equal(t, "labeled.md", final.Artifacts.LabeledNotes)

	err = m.ResolveCheckpoint(StageLabelSpeakers, json.RawMessage(`{"names":{"SPEAKER_00":"Eve"}}`))
	assert.ErrorIs(t, err, checkpoint.ErrAlreadyResolved)
}

func TestCheckpointTimeoutFailsRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCheckpointTimeout(1))
	label := &stubAdapter{execute: func(ctx context.Context, in stage.Input) (stage.Outcome, error) {
		var names checkpoint.SpeakerNames
		err := in.Ask(ctx, checkpoint.KindSpeakers, checkpoint.SpeakersPrompt{}, &names)
		return stage.Outcome{Artifacts: in.Artifacts}, err
	}}
	m := newTestManager(cfg, StageSet{LabelSpeakers: label})
	rc := newRunConfig(t, cfg)
	rc.DoLabelSpeakers = true
	_, err := m.Start(context.Background(), rc)
	require.NoError(t, err)

	snap := waitDone(t, m)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, StageLabelSpeakers, snap.FailedStage)
	assert.Contains(t, snap.Error, "no response within")
	assert.Empty(t, m.Checkpoints().Pending())
}

func TestStageFailureReportsLogTail(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	transcribe := &stubAdapter{execute: func(_ context.Context, in stage.Input) (stage.Outcome, error) {
		for i := 1; i <= 3; i++ {
			in.Line(fmt.Sprintf("tool line %d", i))
		}
		return stage.Outcome{}, services.Wrap(services.ErrExternalTool, in.Stage, "whisperx", "exit status 1", nil)
	}}
	generate := produce("notes.md", func(a *stage.Artifacts, p string) { a.NotesFile = p })
	m := newTestManager(cfg, StageSet{Transcribe: transcribe, GenerateNotes: generate})
	_, err := m.Start(context.Background(), newRunConfig(t, cfg))
	require.NoError(t, err)

	snap := waitDone(t, m)
	require.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, StageTranscribe, snap.FailedStage)
	assert.Contains(t, snap.Error, "exit status 1")
	st, _ := snap.Stage(StageTranscribe)
	assert.Equal(t, StageFailed, st.Status)
	gen, _ := snap.Stage(StageGenerateNotes)
	assert.Equal(t, StagePending, gen.Status, "later stages never start")
	assert.Empty(t, snap.Artifacts.NotesFile)

	evts := allEvents(m)
	last := evts[len(evts)-1]
	assert.True(t, last.Terminal)
	assert.Equal(t, "error", last.Level)
	assert.Equal(t, string(StatusFailed), last.Status)
	assert.Contains(t, last.Message, "--- last output ---")
	assert.Contains(t, last.Message, "tool line 3")
}

func TestStageErrorTailIsNotDuplicated(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	transcribe := &stubAdapter{execute: func(_ context.Context, in stage.Input) (stage.Outcome, error) {
		in.Line("noise")
		return stage.Outcome{}, services.StageFailure(in.Stage, "whisperx", []string{"CUDA out of memory"}, errors.New("exit status 2"))
	}}
	m := newTestManager(cfg, StageSet{Transcribe: transcribe})
	_, err := m.Start(context.Background(), newRunConfig(t, cfg))
	require.NoError(t, err)
	waitDone(t, m)

	evts := allEvents(m)
	last := evts[len(evts)-1]
	assert.Contains(t, last.Message, "CUDA out of memory")
	assert.NotContains(t, last.Message, "noise")
}

func TestStopCancelsRunningStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	transcribe := waitForCtx()
	generate := produce("notes.md", func(a *stage.Artifacts, p string) { a.NotesFile = p })
	m := newTestManager(cfg, StageSet{Transcribe: transcribe, GenerateNotes: generate})
	_, err := m.Start(context.Background(), newRunConfig(t, cfg))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.Status().CurrentStage == StageTranscribe }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Stop())
	snap := m.Status()
	assert.Equal(t, StatusCancelled, snap.Status)
	st, _ := snap.Stage(StageTranscribe)
	assert.Equal(t, StageCancelled, st.Status)
	gen, _ := snap.Stage(StageGenerateNotes)
	assert.Equal(t, StagePending, gen.Status)
	assert.Empty(t, snap.Error)
	assert.EqualValues(t, 1, transcribe.cancelled.Load())

	evts := allEvents(m)
	last := evts[len(evts)-1]
	assert.True(t, last.Terminal)
	assert.Equal(t, string(StatusCancelled), last.Status)
	assert.ErrorIs(t, m.Stop(), ErrNoActiveRun)
}

func TestStopUnblocksCheckpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	label := &stubAdapter{execute: func(ctx context.Context, in stage.Input) (stage.Outcome, error) {
		var names checkpoint.SpeakerNames
		err := in.Ask(ctx, checkpoint.KindSpeakers, checkpoint.SpeakersPrompt{}, &names)
		return stage.Outcome{Artifacts: in.Artifacts}, err
	}}
	m := newTestManager(cfg, StageSet{LabelSpeakers: label})
	rc := newRunConfig(t, cfg)
	rc.DoLabelSpeakers = true
	_, err := m.Start(context.Background(), rc)
	require.NoError(t, err)
	waitForStatus(t, m, StatusWaitingInput)

	require.NoError(t, m.Stop())
	assert.Equal(t, StatusCancelled, m.Status().Status)
	assert.Empty(t, m.Checkpoints().Pending())
}

func TestStopForcesCancelWhenStageHangs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.StopGraceSeconds = 0
	release := make(chan struct{})
	var once sync.Once
	t.Cleanup(func() { once.Do(func() { close(release) }) })
	hung := &stubAdapter{execute: func(_ context.Context, in stage.Input) (stage.Outcome, error) {
		<-release
		art := in.Artifacts
		art.TranscriptJSON = "late.json"
		return stage.Outcome{Artifacts: art}, nil
	}}
	m := newTestManager(cfg, StageSet{Transcribe: hung})
	m.slack = 100 * time.Millisecond
	_, err := m.Start(context.Background(), newRunConfig(t, cfg))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.Status().CurrentStage == StageTranscribe }, 5*time.Second, 10*time.Millisecond)

	err = m.Stop()
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrTimeout)
	assert.Equal(t, StatusCancelled, m.Status().Status)
	assert.EqualValues(t, 1, hung.cancelled.Load())

	once.Do(func() { close(release) })
	snap := waitDone(t, m)
	assert.Equal(t, StatusCancelled, snap.Status)
	assert.Empty(t, snap.Artifacts.TranscriptJSON, "late results are not committed")
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	m := newTestManager(cfg, StageSet{})
	rc := runconfig.Default()
	rc.VideoPath = filepath.Join(t.TempDir(), "missing.mp4")
	rc.DoSplit = true

	_, err := m.Start(context.Background(), rc)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrConfiguration)
	var cfgErr *services.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "does not exist")
	assert.Contains(t, err.Error(), "timestamp_file")
	assert.Equal(t, StatusIdle, m.Status().Status)
}

func TestStartRejectsSecondRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	m := newTestManager(cfg, StageSet{Transcribe: waitForCtx()})
	rc := newRunConfig(t, cfg)
	_, err := m.Start(context.Background(), rc)
	require.NoError(t, err)

	_, err = m.Start(context.Background(), rc)
	assert.ErrorIs(t, err, ErrRunActive)

	require.NoError(t, m.Stop())
	rc.OutputDir = filepath.Join(testsupport.BaseDir(cfg), "second")
	_, err = m.Start(context.Background(), rc)
	require.NoError(t, err, "a terminal run does not block the next one")
	require.NoError(t, m.Stop())
}

func TestRunIsArchived(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	m := newTestManager(cfg, StageSet{
		Transcribe: produce("transcript.json", func(a *stage.Artifacts, p string) { a.TranscriptJSON = p }),
	}, WithArchive(store))
	rc := newRunConfig(t, cfg)
	_, err := m.Start(context.Background(), rc)
	require.NoError(t, err)
	snap := waitDone(t, m)

	rec, err := store.Get(context.Background(), snap.RunID)
	require.NoError(t, err)
	assert.Equal(t, string(StatusCompleted), rec.Status)
	assert.Equal(t, rc.VideoPath, rec.VideoPath)
	assert.Equal(t, rc.OutputDir, rec.OutputDir)
	require.NotNil(t, rec.FinishedAt)
	require.Len(t, rec.Stages, len(StageNames()))
	assert.Equal(t, StageTranscribe, rec.Stages[3].Name)
	assert.Equal(t, string(StageDone), rec.Stages[3].Status)

	var art Artifacts
	require.NoError(t, json.Unmarshal(rec.Artifacts, &art))
	assert.Equal(t, "transcript.json", art.TranscriptJSON)
	var stored runconfig.RunConfig
	require.NoError(t, json.Unmarshal(rec.Config, &stored))
	assert.Equal(t, rc.VideoPath, stored.VideoPath)
}

func TestRunWritesDedicatedLog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	m := newTestManager(cfg, StageSet{
		Transcribe: produce("transcript.json", func(a *stage.Artifacts, p string) { a.TranscriptJSON = p }),
	})
	_, err := m.Start(context.Background(), newRunConfig(t, cfg))
	require.NoError(t, err)
	waitDone(t, m)

	matches, err := filepath.Glob(filepath.Join(cfg.Paths.LogDir, "runs", "*-lecture-*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "stage_complete")
}
