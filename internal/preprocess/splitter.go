package preprocess

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"video2notes/internal/config"
	"video2notes/internal/deps"
	"video2notes/internal/logging"
	"video2notes/internal/media"
	"video2notes/internal/services"
	"video2notes/internal/stage"
)

const splitStage = "split"

// Splitter cuts the source video at the timestamps listed in the run's
// timestamp file. The pipeline keeps processing the original video; the
// segments are a side artifact.
type Splitter struct {
	cfg    *config.Config
	runner *stage.Runner
	tools  media.Tools
}

// NewSplitter constructs the split stage adapter.
func NewSplitter(cfg *config.Config, opts ...Option) *Splitter {
	runner := stage.NewRunner(cfg.StopGrace(), cfg.Workflow.LogTailLines)
	s := &Splitter{
		cfg:    cfg,
		runner: runner,
		tools:  media.Tools{FFmpeg: cfg.FFmpegBinary(), FFprobe: cfg.FFprobeBinary(), Runner: runner},
	}
	o := applyOptions(opts)
	if o.tools != nil {
		s.tools = *o.tools
	}
	return s
}

func (s *Splitter) Cancel() { s.runner.Cancel() }

func (s *Splitter) HealthCheck(context.Context) stage.Health {
	if ready, detail := deps.Summarize(deps.CheckBinaries(deps.FFmpeg(s.cfg))); !ready {
		return stage.Unhealthy(splitStage, detail)
	}
	return stage.Healthy(splitStage)
}

// Execute writes <name>_seg_N.mp4 files into the output directory.
func (s *Splitter) Execute(ctx context.Context, in stage.Input) (stage.Outcome, error) {
	s.runner.Reset()
	art := in.Artifacts.Clone()

	stamps, err := ReadTimestampFile(in.Config.TimestampFile)
	if err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrValidation, splitStage, "read timestamps", "", err)
	}
	probe, err := s.tools.Probe(ctx, in.Config.VideoPath)
	if err != nil {
		return stage.Outcome{}, services.StageFailure(splitStage, "probe video", s.runner.Tail(), err)
	}
	bounds := Boundaries(stamps, probe.DurationSeconds())
	if len(bounds) < 2 {
		return stage.Outcome{}, services.Wrap(services.ErrValidation, splitStage, "plan segments", "video duration unknown and no timestamps", nil)
	}

	if err := os.MkdirAll(art.OutputDir, 0o755); err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrStageExecution, splitStage, "create output dir", "", err)
	}
	segments := make([]string, 0, len(bounds)-1)
	total := len(bounds) - 1
	for i := 0; i < total; i++ {
		dest := filepath.Join(art.OutputDir, fmt.Sprintf("%s_seg_%d.mp4", art.VideoName, i+1))
		in.Report(i*100/total, fmt.Sprintf("Cutting segment %d/%d", i+1, total))
		if err := s.tools.CutSegment(ctx, in.Config.VideoPath, bounds[i], bounds[i+1], dest, in.Line); err != nil {
			return stage.Outcome{}, services.StageFailure(splitStage, "cut segment", s.runner.Tail(), err)
		}
		segments = append(segments, dest)
	}
	in.Log().Info("video split", logging.Int("segments", len(segments)))

	art.Segments = segments
	return stage.Outcome{Artifacts: art, Outputs: segments}, nil
}
