package runconfig_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video2notes/internal/config"
	"video2notes/internal/runconfig"
	"video2notes/internal/services"
)

func writeVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talk.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
	return path
}

func TestDecodeAppliesDefaults(t *testing.T) {
	cfg, err := runconfig.DecodeJSON([]byte(`{"video_path":"/tmp/a.mp4"}`))
	require.NoError(t, err)
	assert.True(t, cfg.ExtractAudio)
	assert.True(t, cfg.DoLabelSpeakers)
	assert.False(t, cfg.DoRefineNotes)
	assert.Nil(t, cfg.ROITimestamp)
}

func TestDecodeFormats(t *testing.T) {
	tomlCfg, err := runconfig.DecodeTOML([]byte("video_path = \"/v/a.mp4\"\nroi_timestamp = 30.5\ndo_label_speakers = false\n"))
	require.NoError(t, err)
	require.NotNil(t, tomlCfg.ROITimestamp)
	assert.InDelta(t, 30.5, *tomlCfg.ROITimestamp, 1e-9)
	assert.False(t, tomlCfg.DoLabelSpeakers)

	yamlCfg, err := runconfig.DecodeYAML([]byte("video_path: /v/a.mp4\nskip_roi: true\nmax_chars: 1000\n"))
	require.NoError(t, err)
	assert.True(t, yamlCfg.SkipROI)
	assert.Equal(t, 1000, yamlCfg.MaxChars)
	assert.True(t, yamlCfg.ExtractAudio)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	cases := map[string]func([]byte) (runconfig.RunConfig, error){
		`{"video_path":"a","upload_folder":"x"}`: runconfig.DecodeJSON,
		"video_path = \"a\"\nupload_folder = \"x\"\n": runconfig.DecodeTOML,
		"video_path: a\nupload_folder: x\n":         runconfig.DecodeYAML,
	}
	for input, decode := range cases {
		_, err := decode([]byte(input))
		require.Error(t, err, input)
		var cfgErr *services.ConfigError
		assert.True(t, errors.As(err, &cfgErr), input)
	}
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yml")
	require.NoError(t, os.WriteFile(path, []byte("video_path: /v/a.mp4\n"), 0o644))
	cfg, err := runconfig.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/v/a.mp4", cfg.VideoPath)

	bad := filepath.Join(dir, "run.ini")
	require.NoError(t, os.WriteFile(bad, []byte(""), 0o644))
	_, err = runconfig.Load(bad)
	assert.ErrorIs(t, err, services.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	video := writeVideo(t)
	stamps := filepath.Join(filepath.Dir(video), "stamps.txt")
	require.NoError(t, os.WriteFile(stamps, []byte("01:00\n"), 0o644))
	ts := 12.0
	negative := -1.0

	app := config.Default()
	app.LLM.AllowedModels = []string{"openai/gpt-4o-2024-08-06"}

	tests := []struct {
		name    string
		mutate  func(*runconfig.RunConfig)
		problem string
	}{
		{name: "valid", mutate: func(*runconfig.RunConfig) {}},
		{name: "missing video", mutate: func(c *runconfig.RunConfig) { c.VideoPath = "" }, problem: "video_path is required"},
		{name: "nonexistent video", mutate: func(c *runconfig.RunConfig) { c.VideoPath = "/nope/x.mp4" }, problem: "does not exist"},
		{name: "roi conflict", mutate: func(c *runconfig.RunConfig) { c.SkipROI = true; c.ROITimestamp = &ts }, problem: "roi_timestamp cannot be set"},
		{name: "negative roi", mutate: func(c *runconfig.RunConfig) { c.ROITimestamp = &negative }, problem: "roi_timestamp must be >= 0"},
		{name: "split without file", mutate: func(c *runconfig.RunConfig) { c.DoSplit = true }, problem: "timestamp_file is required when do_split is true"},
		{name: "split with file", mutate: func(c *runconfig.RunConfig) { c.DoSplit = true; c.TimestampFile = stamps }},
		{name: "split missing file", mutate: func(c *runconfig.RunConfig) { c.DoSplit = true; c.TimestampFile = stamps + ".gone" }, problem: "timestamp_file"},
		{name: "threshold range", mutate: func(c *runconfig.RunConfig) { c.DedupThreshold = 65 }, problem: "dedup_threshold must be <= 64"},
		{name: "max chars", mutate: func(c *runconfig.RunConfig) { c.MaxChars = -5 }, problem: "max_chars must be >= 0"},
		{name: "model not allowed", mutate: func(c *runconfig.RunConfig) { c.RefineNotesModel = "other/model" }, problem: "not in llm.allowed_models"},
		{name: "model allowed", mutate: func(c *runconfig.RunConfig) { c.RefineNotesModel = "openai/gpt-4o-2024-08-06" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := runconfig.Default()
			cfg.VideoPath = video
			tt.mutate(&cfg)
			err := cfg.Validate(&app)
			if tt.problem == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cfgErr *services.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Contains(t, err.Error(), tt.problem)
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := runconfig.Default()
	cfg.DedupThreshold = 100
	cfg.MaxChars = -1
	err := cfg.Validate(nil)
	var cfgErr *services.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Len(t, cfgErr.Problems, 3)
}

func TestDerivedValues(t *testing.T) {
	cfg := runconfig.Default()
	cfg.VideoPath = "/videos/lecture.one.mp4"
	assert.Equal(t, "lecture.one", cfg.VideoName())
	now := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	assert.Equal(t, "/videos/lecture.one_output_20240309_140506", cfg.ResolveOutputDir(now))
	cfg.OutputDir = "/out"
	assert.Equal(t, "/out", cfg.ResolveOutputDir(now))

	assert.Equal(t, 13, cfg.Threshold(13))
	cfg.DedupThreshold = 20
	assert.Equal(t, 20, cfg.Threshold(13))
	assert.Zero(t, cfg.ROITime())
}
