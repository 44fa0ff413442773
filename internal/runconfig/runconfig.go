package runconfig

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// RunConfig is the flattened per-run option record accepted from the CLI, the
// HTTP API and run files. Use Default as the starting point so that
// extract_audio and do_label_speakers default to true.
type RunConfig struct {
	VideoPath        string   `json:"video_path" toml:"video_path" yaml:"video_path" validate:"required"`
	SkipROI          bool     `json:"skip_roi" toml:"skip_roi" yaml:"skip_roi"`
	ROITimestamp     *float64 `json:"roi_timestamp,omitempty" toml:"roi_timestamp,omitempty" yaml:"roi_timestamp,omitempty" validate:"omitempty,gte=0"`
	ExtractAudio     bool     `json:"extract_audio" toml:"extract_audio" yaml:"extract_audio"`
	DoSplit          bool     `json:"do_split" toml:"do_split" yaml:"do_split"`
	TimestampFile    string   `json:"timestamp_file,omitempty" toml:"timestamp_file,omitempty" yaml:"timestamp_file,omitempty" validate:"required_if=DoSplit true"`
	DoLabelSpeakers  bool     `json:"do_label_speakers" toml:"do_label_speakers" yaml:"do_label_speakers"`
	DoRefineNotes    bool     `json:"do_refine_notes" toml:"do_refine_notes" yaml:"do_refine_notes"`
	RefineNotesModel string   `json:"refine_notes_model,omitempty" toml:"refine_notes_model,omitempty" yaml:"refine_notes_model,omitempty"`
	DedupThreshold   int      `json:"dedup_threshold" toml:"dedup_threshold" yaml:"dedup_threshold" validate:"gte=0,lte=64"`
	MaxChars         int      `json:"max_chars" toml:"max_chars" yaml:"max_chars" validate:"gte=0"`
	OutputDir        string   `json:"output_dir,omitempty" toml:"output_dir,omitempty" yaml:"output_dir,omitempty"`
}

// Default returns a RunConfig with the documented defaults applied.
func Default() RunConfig {
	return RunConfig{
		ExtractAudio:    true,
		DoLabelSpeakers: true,
	}
}

// VideoName is the video file name without directory or extension.
func (c RunConfig) VideoName() string {
	base := filepath.Base(c.VideoPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ResolveOutputDir returns OutputDir, or the default
// <video dir>/<name>_output_<YYYYMMDD_HHMMSS> when unset.
func (c RunConfig) ResolveOutputDir(now time.Time) string {
	if strings.TrimSpace(c.OutputDir) != "" {
		return c.OutputDir
	}
	dir := filepath.Dir(c.VideoPath)
	return filepath.Join(dir, fmt.Sprintf("%s_output_%s", c.VideoName(), now.Format("20060102_150405")))
}

// Threshold returns the per-run dedup threshold, falling back to appDefault
// when the run leaves it at zero.
func (c RunConfig) Threshold(appDefault int) int {
	if c.DedupThreshold > 0 {
		return c.DedupThreshold
	}
	return appDefault
}

// ROITime is the reference frame timestamp in seconds (zero when unset).
func (c RunConfig) ROITime() float64 {
	if c.ROITimestamp == nil {
		return 0
	}
	return *c.ROITimestamp
}
