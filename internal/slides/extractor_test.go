package slides

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video2notes/internal/checkpoint"
	"video2notes/internal/config"
	"video2notes/internal/media"
	"video2notes/internal/runconfig"
	"video2notes/internal/stage"
)

// frameWriter fakes ffmpeg by writing count empty frame files into the output
// pattern's directory.
type frameWriter struct {
	count int
	args  []string
}

func (f *frameWriter) Run(_ context.Context, _ func(string), _ string, args ...string) error {
	f.args = args
	dir := filepath.Dir(args[len(args)-1])
	for i := 1; i <= f.count; i++ {
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("frame_%06d.png", i)), []byte("png"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *frameWriter) Output(context.Context, string, ...string) ([]byte, error) {
	return nil, nil
}

// hashByFrame maps frame_00000N.png to a fixed hash sequence.
func hashByFrame(seq []Hash) HashFunc {
	return func(path string) (Hash, error) {
		var n int
		if _, err := fmt.Sscanf(filepath.Base(path), "frame_%06d.png", &n); err != nil {
			return 0, err
		}
		return seq[n-1], nil
	}
}

func newExtractorInput(t *testing.T) stage.Input {
	t.Helper()
	out := t.TempDir()
	rc := runconfig.Default()
	rc.VideoPath = filepath.Join(out, "talk.mp4")
	return stage.Input{
		RunID:  "run-1",
		Stage:  stageName,
		Config: rc,
		Artifacts: stage.Artifacts{
			OutputDir: out,
			ROI:       [4]int{10, 20, 640, 360},
		},
	}
}

func TestExtractorCuratesSlides(t *testing.T) {
	cfg := config.Default()
	writer := &frameWriter{count: 5}
	seq := []Hash{0, bitsRange(0, 20), bitsRange(0, 20) ^ bitsRange(20, 40), bitsRange(0, 40) ^ bitsRange(40, 41), bitsRange(0, 40) ^ bitsRange(40, 60)}
	ex := NewExtractor(&cfg, WithTools(media.Tools{Runner: writer}), WithHashFunc(hashByFrame(seq)))

	in := newExtractorInput(t)
	in.Artifacts.Masks = [][4]int{{600, 300, 100, 100}}
	var prompt checkpoint.SlidesPrompt
	in.Checkpoint = func(_ context.Context, kind checkpoint.Kind, p any) (json.RawMessage, error) {
		require.Equal(t, checkpoint.KindSlides, kind)
		prompt = p.(checkpoint.SlidesPrompt)
		return json.RawMessage(`{"accepted":[0,3],"vocabulary":["Kubernetes"," "]}`), nil
	}

	outcome, err := ex.Execute(context.Background(), in)
	require.NoError(t, err)

	assert.Contains(t, strings.Join(writer.args, " "), "drawbox=x=600:y=300:w=100:h=100:color=black:t=fill,crop=640:360:10:20")
	require.Len(t, prompt.Slides, 4)
	assert.InDelta(t, 4.0, prompt.Slides[3].Timestamp, 1e-9)

	art := outcome.Artifacts
	assert.Equal(t, []string{"Kubernetes"}, art.Vocabulary)
	selected, err := ReadRecords(art.SlidesJSON)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, 0, selected[0].GroupID)
	assert.Equal(t, 3, selected[1].GroupID)
	assert.FileExists(t, filepath.Join(art.OutputDir, selected[1].ImagePath))
	assert.NoFileExists(t, filepath.Join(art.SlidesDir, "slide_0001.png"))

	original, err := ReadRecords(filepath.Join(art.SlidesDir, OriginalRecordsFile))
	require.NoError(t, err)
	assert.Len(t, original, 4)

	entries, err := os.ReadDir(art.OutputDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), ".frames-"), "frames dir should be removed")
	}
}

func TestExtractorAutoAcceptSkipsCheckpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Workflow.AutoAcceptSlides = true
	ex := NewExtractor(&cfg,
		WithTools(media.Tools{Runner: &frameWriter{count: 3}}),
		WithHashFunc(hashByFrame([]Hash{0, 0, bitsRange(0, 30)})),
	)
	in := newExtractorInput(t)
	in.Checkpoint = func(context.Context, checkpoint.Kind, any) (json.RawMessage, error) {
		t.Fatal("checkpoint should not open when slides are auto-accepted")
		return nil, nil
	}

	outcome, err := ex.Execute(context.Background(), in)
	require.NoError(t, err)
	selected, err := ReadRecords(outcome.Artifacts.SlidesJSON)
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, []int{0, 1}, []int{selected[0].GroupID, selected[1].GroupID})
}

func TestExtractorKeepsReturningSlideWithOCR(t *testing.T) {
	cfg := config.Default()
	cfg.Workflow.AutoAcceptSlides = true
	cfg.Slides.OCREnabled = true
	ocrText := map[string]string{"slide_0000.png": "Title", "slide_0001.png": "Agenda", "slide_0002.png": "Title\n"}
	ex := NewExtractor(&cfg,
		WithTools(media.Tools{Runner: &frameWriter{count: 3}}),
		WithHashFunc(hashByFrame([]Hash{0, bitsRange(0, 30), 0})),
		WithOCR(func(_ context.Context, path string) (string, error) {
			return ocrText[filepath.Base(path)], nil
		}),
	)
	in := newExtractorInput(t)

	outcome, err := ex.Execute(context.Background(), in)
	require.NoError(t, err)
	selected, err := ReadRecords(outcome.Artifacts.SlidesJSON)
	require.NoError(t, err)
	require.Len(t, selected, 3, "a slide shown again after another one is a new slide")
	texts := make([]string, len(selected))
	for i, rec := range selected {
		texts[i] = rec.OCRText
		assert.FileExists(t, filepath.Join(outcome.Artifacts.OutputDir, rec.ImagePath))
	}
	assert.Equal(t, []string{"Title", "Agenda", "Title"}, texts)
}

func TestExtractorFailsWithoutFrames(t *testing.T) {
	cfg := config.Default()
	ex := NewExtractor(&cfg, WithTools(media.Tools{Runner: &frameWriter{count: 0}}))
	_, err := ex.Execute(context.Background(), newExtractorInput(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no frames")
}
