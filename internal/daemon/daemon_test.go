package daemon_test

import (
	"context"
	"testing"

	"video2notes/internal/api"
	"video2notes/internal/config"
	"video2notes/internal/daemon"
	"video2notes/internal/logging"
	"video2notes/internal/stage"
	"video2notes/internal/testsupport"
	"video2notes/internal/workflow"
)

type noopStage struct{}

func (noopStage) Execute(_ context.Context, in stage.Input) (stage.Outcome, error) {
	return stage.Outcome{Artifacts: in.Artifacts}, nil
}
func (noopStage) Cancel() {}
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, workflow.StageSet{Transcribe: noopStage{}}, logger, workflow.WithArchive(store))
	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Run.Status != workflow.StatusIdle {
		t.Fatalf("expected idle workflow, got %s", status.Run.Status)
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	client, err := api.NewClient(d.Addr(), "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	remote, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("client.Status: %v", err)
	}
	if !remote.Running || remote.Run.Status != "idle" {
		t.Fatalf("unexpected remote status: %+v", remote)
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	if _, err := client.Status(ctx); !api.IsAPIUnavailable(err) {
		t.Fatalf("expected API to be down after stop, got %v", err)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	t.Cleanup(func() { first.Close() })
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second := newDaemon(t, cfg)
	t.Cleanup(func() { second.Close() })
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second daemon to be refused the lock")
	}
}

func TestDaemonWatcherEnabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Watcher.Enabled = true
	d := newDaemon(t, cfg)
	t.Cleanup(func() { d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status()
	if status.InboxDir != cfg.Paths.InboxDir {
		t.Fatalf("expected inbox %q, got %q", cfg.Paths.InboxDir, status.InboxDir)
	}

	client, _ := api.NewClient(d.Addr(), "")
	resp, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if len(resp.Stages) != 1 || resp.Stages[0].Name != "noop" {
		t.Fatalf("unexpected stage health: %+v", resp.Stages)
	}
	if len(resp.Dependencies) == 0 {
		t.Fatal("expected dependency report")
	}
}
