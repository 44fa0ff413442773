package testsupport

import (
	"path/filepath"
	"testing"

	"video2notes/internal/config"
)

// ConfigOption adjusts the config returned by NewConfig.
type ConfigOption func(*config.Config)

// NewConfig returns defaults rooted in a fresh temp dir: work, logs and inbox
// live beside each other, the API binds an ephemeral port and the stop grace
// is one second so cancellation tests stay fast.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.InboxDir = filepath.Join(base, "inbox")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Workflow.StopGraceSeconds = 1
	cfg.Slides.HashWorkers = 2
	cfg.LLM.APIKey = "test"
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

func WithLLMKey(key string) ConfigOption {
	return func(c *config.Config) { c.LLM.APIKey = key }
}

func WithCheckpointTimeout(seconds int) ConfigOption {
	return func(c *config.Config) { c.Workflow.CheckpointTimeoutSeconds = seconds }
}

// WithAPIToken turns on bearer auth for the API.
func WithAPIToken(token string) ConfigOption {
	return func(c *config.Config) { c.Paths.APIToken = token }
}

// BaseDir is the temp root NewConfig created; tests put fixtures here.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
