package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"video2notes/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndReadsEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("HF_TOKEN", "hf-key")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "video2notes", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.LLM.APIKey != "or-key" {
		t.Fatalf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.WhisperX.HFToken != "hf-key" {
		t.Fatalf("expected HF token from env, got %q", cfg.WhisperX.HFToken)
	}
	if cfg.Slides.DedupThreshold != 13 {
		t.Fatalf("unexpected dedup threshold %d", cfg.Slides.DedupThreshold)
	}
	if cfg.Slides.HashWorkers <= 0 {
		t.Fatalf("expected positive hash worker default, got %d", cfg.Slides.HashWorkers)
	}
	if cfg.Workflow.EventBuffer != 500 {
		t.Fatalf("unexpected event buffer %d", cfg.Workflow.EventBuffer)
	}
	if cfg.CheckpointTimeout() != 0 {
		t.Fatalf("expected unbounded checkpoint wait by default, got %s", cfg.CheckpointTimeout())
	}
}

func TestLoadCustomConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(dir, "work")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Slides.DedupThreshold = 9
	cfg.Workflow.CheckpointTimeoutSeconds = 30
	cfg.LLM.AllowedModels = []string{"openai/gpt-4o-2024-08-06", "anthropic/claude-sonnet-4"}

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loaded, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if loaded.Slides.DedupThreshold != 9 {
		t.Fatalf("expected threshold 9, got %d", loaded.Slides.DedupThreshold)
	}
	if loaded.CheckpointTimeout().Seconds() != 30 {
		t.Fatalf("unexpected checkpoint timeout %s", loaded.CheckpointTimeout())
	}
	if !loaded.ModelAllowed("anthropic/claude-sonnet-4") || loaded.ModelAllowed("random/model") {
		t.Fatal("allowed model list not honoured")
	}
	if err := loaded.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if _, err := os.Stat(loaded.Paths.WorkDir); err != nil {
		t.Fatalf("expected work dir to exist: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[slides]\ndedup_treshold = 4\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "dedup_treshold") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"threshold too high", func(c *config.Config) { c.Slides.DedupThreshold = 65 }, "slides.dedup_threshold"},
		{"zero grace", func(c *config.Config) { c.Workflow.StopGraceSeconds = 0 }, "workflow.stop_grace_seconds"},
		{"grace beyond api timeout", func(c *config.Config) { c.Workflow.StopGraceSeconds = config.MaxStopGraceSeconds + 1 }, "at most 20"},
		{"grace at cap", func(c *config.Config) { c.Workflow.StopGraceSeconds = config.MaxStopGraceSeconds }, ""},
		{"negative timeout", func(c *config.Config) { c.Workflow.CheckpointTimeoutSeconds = -1 }, "workflow.checkpoint_timeout_seconds"},
		{"pyannote without token", func(c *config.Config) { c.WhisperX.VADMethod = "pyannote" }, "whisperx.hf_token"},
		{"model not allowed", func(c *config.Config) { c.LLM.AllowedModels = []string{"x/y"} }, "llm.model"},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
}
