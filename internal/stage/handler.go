package stage

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"video2notes/internal/checkpoint"
	"video2notes/internal/runconfig"
	"video2notes/internal/services"
)

// Adapter is the contract the orchestrator needs from each pipeline stage.
// Execute runs the stage to completion; Cancel may be called from another
// goroutine and must cause an in-flight Execute to return promptly.
type Adapter interface {
	Execute(context.Context, Input) (Outcome, error)
	Cancel()
}

// HealthChecker is implemented by adapters that depend on external tools.
type HealthChecker interface {
	HealthCheck(context.Context) Health
}

// Health is one stage's readiness as shown by the status endpoint.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func Healthy(name string) Health { return Health{Name: name, Ready: true} }

// Unhealthy marks name not ready; detail says what to install or configure.
func Unhealthy(name, detail string) Health { return Health{Name: name, Detail: detail} }

// ProgressFunc receives a stage-relative progress update. percent is -1 when
// the update carries only a message.
type ProgressFunc func(percent int, message string)

// CheckpointFunc opens an interactive checkpoint and blocks for its resolution.
type CheckpointFunc func(ctx context.Context, kind checkpoint.Kind, prompt any) (json.RawMessage, error)

// Input carries everything a stage needs from the run.
type Input struct {
	RunID      string
	Stage      string
	Config     runconfig.RunConfig
	Artifacts  Artifacts
	Progress   ProgressFunc
	Checkpoint CheckpointFunc
	Logger     *slog.Logger
}

// Outcome is the updated artifact record plus the files the stage produced.
type Outcome struct {
	Artifacts Artifacts
	Outputs   []string
}

// Report forwards a message to the progress callback when one is attached.
func (in Input) Report(percent int, message string) {
	if in.Progress == nil {
		return
	}
	in.Progress(percent, strings.TrimSpace(message))
}

// Line adapts Report for subprocess output streams.
func (in Input) Line(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	in.Report(-1, line)
}

// Ask opens a checkpoint and decodes the resolution into out.
func (in Input) Ask(ctx context.Context, kind checkpoint.Kind, prompt any, out any) error {
	if in.Checkpoint == nil {
		return services.Wrap(services.ErrConfiguration, in.Stage, "checkpoint", "interactive stage has no checkpoint handler", nil)
	}
	payload, err := in.Checkpoint(ctx, kind, prompt)
	if err != nil {
		return err
	}
	return checkpoint.Decode(payload, out)
}

// Log returns the stage logger, never nil.
func (in Input) Log() *slog.Logger {
	if in.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return in.Logger
}
