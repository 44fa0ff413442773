package preprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"video2notes/internal/checkpoint"
	"video2notes/internal/config"
	"video2notes/internal/deps"
	"video2notes/internal/logging"
	"video2notes/internal/media"
	"video2notes/internal/services"
	"video2notes/internal/stage"
)

const preprocessStage = "preprocess"

// ROIFile is the persisted slide region, <name>_rois.json. Besides "slide",
// rois may hold "speaker" and "subtitle" regions to blank before hashing.
type ROIFile struct {
	Timestamp   float64          `json:"timestamp"`
	FrameNumber int              `json:"frame_number"`
	ROIs        map[string][]int `json:"rois"`
}

// Slide returns the slide rectangle, if present.
func (f ROIFile) Slide() ([4]int, bool) {
	r, ok := f.ROIs["slide"]
	if !ok || len(r) != 4 {
		return [4]int{}, false
	}
	return [4]int{r[0], r[1], r[2], r[3]}, true
}

// maskKeys orders the optional mask regions.
var maskKeys = []string{"speaker", "subtitle"}

// Masks returns the recorded mask regions in speaker, subtitle order.
func (f ROIFile) Masks() [][4]int {
	var out [][4]int
	for _, key := range maskKeys {
		if r := f.ROIs[key]; len(r) == 4 && r[2] > 0 && r[3] > 0 {
			out = append(out, [4]int{r[0], r[1], r[2], r[3]})
		}
	}
	return out
}

// Preprocessor extracts the audio track and records the slide region, asking
// the user to draw it unless skip_roi is set.
type Preprocessor struct {
	cfg    *config.Config
	runner *stage.Runner
	tools  media.Tools
}

// NewPreprocessor constructs the preprocess stage adapter.
func NewPreprocessor(cfg *config.Config, opts ...Option) *Preprocessor {
	runner := stage.NewRunner(cfg.StopGrace(), cfg.Workflow.LogTailLines)
	p := &Preprocessor{
		cfg:    cfg,
		runner: runner,
		tools:  media.Tools{FFmpeg: cfg.FFmpegBinary(), FFprobe: cfg.FFprobeBinary(), Runner: runner},
	}
	o := applyOptions(opts)
	if o.tools != nil {
		p.tools = *o.tools
	}
	return p
}

func (p *Preprocessor) Cancel() { p.runner.Cancel() }

func (p *Preprocessor) HealthCheck(context.Context) stage.Health {
	if ready, detail := deps.Summarize(deps.CheckBinaries(deps.FFmpeg(p.cfg))); !ready {
		return stage.Unhealthy(preprocessStage, detail)
	}
	return stage.Healthy(preprocessStage)
}

func (p *Preprocessor) Execute(ctx context.Context, in stage.Input) (stage.Outcome, error) {
	p.runner.Reset()
	logger := in.Log()
	art := in.Artifacts.Clone()
	if err := os.MkdirAll(art.OutputDir, 0o755); err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrStageExecution, preprocessStage, "create output dir", "", err)
	}
	var outputs []string

	probe, err := p.tools.Probe(ctx, in.Config.VideoPath)
	if err != nil {
		return stage.Outcome{}, p.failure("probe video", err)
	}
	width, height, err := probe.Dimensions()
	if err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrValidation, preprocessStage, "probe video", "", err)
	}
	art.FrameWidth, art.FrameHeight = width, height

	if in.Config.ExtractAudio {
		dest := filepath.Join(art.OutputDir, art.VideoName+".m4a")
		in.Report(0, "Extracting audio")
		if err := p.tools.ExtractAudio(ctx, in.Config.VideoPath, dest, in.Line); err != nil {
			return stage.Outcome{}, p.failure("extract audio", err)
		}
		art.AudioPath = dest
		outputs = append(outputs, dest)
		logger.Info("audio extracted", logging.String("audio_path", dest))
	}

	roi := ROIFile{ROIs: map[string][]int{}}
	if in.Config.SkipROI {
		roi.ROIs["slide"] = []int{0, 0, width, height}
		logger.Info("roi selection skipped; using full frame", logging.Int("width", width), logging.Int("height", height))
	} else {
		ts := in.Config.ROITime()
		framePath := filepath.Join(art.OutputDir, art.VideoName+"_roi_frame.png")
		in.Report(50, fmt.Sprintf("Extracting reference frame at %.1fs", ts))
		if err := p.tools.ExtractFrame(ctx, in.Config.VideoPath, ts, framePath); err != nil {
			return stage.Outcome{}, p.failure("extract frame", err)
		}
		in.Report(60, "Waiting for slide region selection")
		var answer checkpoint.ROIResolution
		prompt := checkpoint.ROIPrompt{FramePath: framePath, Timestamp: ts, Width: width, Height: height}
		if err := in.Ask(ctx, checkpoint.KindROI, prompt, &answer); err != nil {
			return stage.Outcome{}, err
		}
		rect := answer.Rect(width, height)
		roi.Timestamp = ts
		roi.FrameNumber = frameNumber(ts, probe.FrameRate())
		roi.ROIs["slide"] = rect[:]
		for name, m := range answer.Masks() {
			roi.ROIs[name] = []int{m[0], m[1], m[2], m[3]}
		}
	}

	roiPath := filepath.Join(art.OutputDir, art.VideoName+"_rois.json")
	data, err := json.MarshalIndent(roi, "", "    ")
	if err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrStageExecution, preprocessStage, "encode roi", "", err)
	}
	if err := os.WriteFile(roiPath, data, 0o644); err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrStageExecution, preprocessStage, "write roi", "", err)
	}
	rect, _ := roi.Slide()
	art.ROIFile = roiPath
	art.ROI = rect
	art.Masks = roi.Masks()
	if len(art.Masks) > 0 {
		logger.Info("mask regions recorded", logging.Int("count", len(art.Masks)))
	}
	outputs = append(outputs, roiPath)
	in.Report(100, fmt.Sprintf("Slide region %v", rect))
	return stage.Outcome{Artifacts: art, Outputs: outputs}, nil
}

func (p *Preprocessor) failure(op string, err error) error {
	return services.StageFailure(preprocessStage, op, p.runner.Tail(), err)
}

// ReadROIFile loads a <name>_rois.json file.
func ReadROIFile(path string) (ROIFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ROIFile{}, fmt.Errorf("read roi file: %w", err)
	}
	var roi ROIFile
	if err := json.Unmarshal(data, &roi); err != nil {
		return ROIFile{}, fmt.Errorf("decode roi file: %w", err)
	}
	return roi, nil
}

func frameNumber(ts, fps float64) int {
	if fps <= 0 {
		return 0
	}
	return int(math.Floor(ts * fps))
}
