package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"video2notes/internal/api"
	"video2notes/internal/checkpoint"
	"video2notes/internal/config"
	"video2notes/internal/logging"
	"video2notes/internal/runconfig"
	"video2notes/internal/stage"
	"video2notes/internal/testsupport"
	"video2notes/internal/workflow"
)

type askingStage struct{}

func (askingStage) Execute(ctx context.Context, in stage.Input) (stage.Outcome, error) {
	prompt := checkpoint.SpeakersPrompt{Speakers: []checkpoint.SpeakerCandidate{{ID: "SPEAKER_00"}}}
	var names checkpoint.SpeakerNames
	if err := in.Ask(ctx, checkpoint.KindSpeakers, prompt, &names); err != nil {
		return stage.Outcome{}, err
	}
	art := in.Artifacts
	art.LabeledNotes = filepath.Join(art.OutputDir, names.Name("SPEAKER_00")+".md")
	return stage.Outcome{Artifacts: art}, nil
}

func (askingStage) Cancel() {}

type apiFixture struct {
	cfg    *config.Config
	daemon *Daemon
	client *api.Client
	server *httptest.Server
}

func newAPIFixture(t *testing.T, token string, stages workflow.StageSet) *apiFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken(token))
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, stages, logger, workflow.WithArchive(store))
	d, err := New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(d.api.server.Handler)
	t.Cleanup(func() {
		_ = mgr.Stop()
		srv.Close()
	})
	client, err := api.NewClient(srv.URL, token)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return &apiFixture{cfg: cfg, daemon: d, client: client, server: srv}
}

func (f *apiFixture) runConfig(t *testing.T) runconfig.RunConfig {
	t.Helper()
	video := filepath.Join(testsupport.BaseDir(f.cfg), "talk.mp4")
	testsupport.WriteFile(t, video, 8)
	rc := runconfig.Default()
	rc.VideoPath = video
	rc.OutputDir = filepath.Join(testsupport.BaseDir(f.cfg), "out")
	return rc
}

func (f *apiFixture) waitStatus(t *testing.T, want string) api.RunStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := f.client.Status(context.Background())
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if status.Run.Status == want {
			return status.Run
		}
		if time.Now().After(deadline) {
			t.Fatalf("run never reached %s (last %s)", want, status.Run.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAPIStatusIdle(t *testing.T) {
	f := newAPIFixture(t, "", workflow.StageSet{})
	status, err := f.client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Run.Status != "idle" {
		t.Fatalf("expected idle, got %q", status.Run.Status)
	}
	if status.RunStorePath != f.cfg.RunStorePath() {
		t.Fatalf("unexpected store path %q", status.RunStorePath)
	}
}

func TestAPIRunLifecycleAndHistory(t *testing.T) {
	f := newAPIFixture(t, "", workflow.StageSet{Transcribe: noopAdapter{}})
	ctx := context.Background()

	run, err := f.client.StartRun(ctx, f.runConfig(t))
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if run.RunID == "" {
		t.Fatal("expected run id")
	}
	final := f.waitStatus(t, "completed")
	if final.Percent != 100 {
		t.Fatalf("expected 100%%, got %d", final.Percent)
	}

	runs, err := f.client.Runs(ctx, 5)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.RunID || runs[0].Status != "completed" {
		t.Fatalf("unexpected history: %+v", runs)
	}
	detail, err := f.client.Run(ctx, run.RunID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(detail.Stages) != len(workflow.StageNames()) {
		t.Fatalf("expected %d stages, got %d", len(workflow.StageNames()), len(detail.Stages))
	}
	if _, err := f.client.Run(ctx, "missing"); api.StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown run, got %v", err)
	}

	events, err := f.client.Events(ctx, api.EventQuery{})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events.Events) == 0 || !events.Events[len(events.Events)-1].Terminal {
		t.Fatalf("expected events ending in a terminal event: %+v", events.Events)
	}
	if events.Next != events.Events[len(events.Events)-1].Sequence {
		t.Fatalf("cursor %d does not match last sequence", events.Next)
	}

	if _, err := f.client.StopRun(ctx); api.StatusCode(err) != http.StatusConflict {
		t.Fatalf("expected 409 stopping a finished run, got %v", err)
	}
}

func TestAPIStartRejectsBadConfig(t *testing.T) {
	f := newAPIFixture(t, "", workflow.StageSet{})

	resp, err := http.Post(f.server.URL+"/api/runs", "application/json", strings.NewReader(`{"video_path":"/x.mp4","bogus":true}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown key, got %d", resp.StatusCode)
	}

	rc := runconfig.Default()
	rc.VideoPath = filepath.Join(t.TempDir(), "missing.mp4")
	_, err = f.client.StartRun(context.Background(), rc)
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	if len(apiErr.Problems) == 0 || !strings.Contains(apiErr.Problems[0], "does not exist") {
		t.Fatalf("expected problems list, got %+v", apiErr)
	}
}

func TestAPICheckpointResolution(t *testing.T) {
	f := newAPIFixture(t, "", workflow.StageSet{LabelSpeakers: askingStage{}})
	ctx := context.Background()

	if _, err := f.client.StartRun(ctx, f.runConfig(t)); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if _, err := f.client.StartRun(ctx, f.runConfig(t)); api.StatusCode(err) != http.StatusConflict {
		t.Fatalf("expected 409 for a second run, got %v", err)
	}
	waiting := f.waitStatus(t, "waiting_input")
	if waiting.Checkpoint == nil || waiting.Checkpoint.Stage != workflow.StageLabelSpeakers {
		t.Fatalf("expected label-speakers checkpoint, got %+v", waiting.Checkpoint)
	}

	pending, err := f.client.Checkpoints(ctx)
	if err != nil {
		t.Fatalf("Checkpoints: %v", err)
	}
	if len(pending) != 1 || pending[0].Kind != string(checkpoint.KindSpeakers) {
		t.Fatalf("unexpected pending checkpoints: %+v", pending)
	}

	err = f.client.Resolve(ctx, workflow.StageLabelSpeakers, json.RawMessage(`{"names":{"SPEAKER_00":7}}`))
	if api.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for schema violation, got %v", err)
	}
	err = f.client.Resolve(ctx, workflow.StageTranscribe, json.RawMessage(`{}`))
	if api.StatusCode(err) != http.StatusConflict {
		t.Fatalf("expected 409 for a stage that is not waiting, got %v", err)
	}
	if err := f.client.Resolve(ctx, workflow.StageLabelSpeakers, json.RawMessage(`{"names":{"SPEAKER_00":"Ada"}}`)); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	final := f.waitStatus(t, "completed")
	if final.Artifacts == nil || filepath.Base(final.Artifacts.LabeledNotes) != "Ada.md" {
		t.Fatalf("unexpected artifacts: %+v", final.Artifacts)
	}

	err = f.client.Resolve(ctx, workflow.StageLabelSpeakers, json.RawMessage(`{"names":{"SPEAKER_00":"Eve"}}`))
	if api.StatusCode(err) != http.StatusConflict {
		t.Fatalf("expected 409 for an already resolved checkpoint, got %v", err)
	}
}

func TestAPIStopCancelsRun(t *testing.T) {
	f := newAPIFixture(t, "", workflow.StageSet{LabelSpeakers: askingStage{}})
	ctx := context.Background()
	if _, err := f.client.StartRun(ctx, f.runConfig(t)); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	f.waitStatus(t, "waiting_input")

	run, err := f.client.StopRun(ctx)
	if err != nil {
		t.Fatalf("StopRun: %v", err)
	}
	if run.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %s", run.Status)
	}
}

func TestAPIEventsFollowWaitsForNewEvents(t *testing.T) {
	f := newAPIFixture(t, "", workflow.StageSet{})
	bus := f.daemon.Workflow().Events()
	last := bus.LastSequence()

	go func() {
		time.Sleep(50 * time.Millisecond)
		bus.Publish(eventFor("late"))
	}()
	resp, err := f.client.Events(context.Background(), api.EventQuery{Since: last, Follow: true})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].Message != "late" {
		t.Fatalf("unexpected events: %+v", resp.Events)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	f := newAPIFixture(t, "s3cret", workflow.StageSet{})

	resp, err := http.Get(f.server.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", resp.StatusCode)
	}

	if _, err := f.client.Status(context.Background()); err != nil {
		t.Fatalf("expected token client to succeed: %v", err)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	f := newAPIFixture(t, "", workflow.StageSet{})
	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/api/checkpoints", nil)
	req.Header.Set(api.RequestIDHeader, "req-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get(api.RequestIDHeader); got != "req-42" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
	var body api.CheckpointListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Checkpoints == nil || len(body.Checkpoints) != 0 {
		t.Fatalf("expected empty checkpoint list, got %+v", body.Checkpoints)
	}
}

func TestStopWaitFitsWriteTimeout(t *testing.T) {
	longest := time.Duration(config.MaxStopGraceSeconds)*time.Second + workflow.StopSlack
	if longest >= apiWriteTimeout {
		t.Fatalf("stop may block %s but responses are cut at %s", longest, apiWriteTimeout)
	}
	cfg := testsupport.NewConfig(t)
	srv := newAPIServer(cfg, nil, logging.NewNop())
	if srv.server.WriteTimeout != apiWriteTimeout {
		t.Fatalf("unexpected write timeout %s", srv.server.WriteTimeout)
	}
}
