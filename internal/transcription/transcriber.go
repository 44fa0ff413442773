package transcription

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"video2notes/internal/config"
	"video2notes/internal/deps"
	"video2notes/internal/logging"
	"video2notes/internal/services"
	"video2notes/internal/services/whisperx"
	"video2notes/internal/slides"
	"video2notes/internal/stage"
)

const stageName = "transcribe"

// AudioExtensions are tried, in order, when no audio was extracted.
var AudioExtensions = []string{".mp3", ".m4a", ".wav", ".aac", ".flac", ".ogg"}

// Transcriber is the transcribe stage: WhisperX with diarization over the
// run's audio, biased with the curated vocabulary.
type Transcriber struct {
	cfg     *config.Config
	runner  *stage.Runner
	service *whisperx.Service
}

// Option customizes a Transcriber.
type Option func(*Transcriber)

// WithRunner replaces the command runner WhisperX is launched through.
func WithRunner(runner whisperx.Runner) Option {
	return func(t *Transcriber) {
		t.service = whisperx.NewService(serviceConfig(t.cfg), runner)
	}
}

// NewTranscriber constructs the transcribe stage adapter.
func NewTranscriber(cfg *config.Config, opts ...Option) *Transcriber {
	runner := stage.NewRunner(cfg.StopGrace(), cfg.Workflow.LogTailLines)
	t := &Transcriber{
		cfg:     cfg,
		runner:  runner,
		service: whisperx.NewService(serviceConfig(cfg), runner),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func serviceConfig(cfg *config.Config) whisperx.Config {
	return whisperx.Config{
		Model:       cfg.WhisperX.Model,
		CUDAEnabled: cfg.WhisperX.CUDAEnabled,
		VADMethod:   cfg.WhisperX.VADMethod,
		HFToken:     cfg.WhisperX.HFToken,
		Diarize:     cfg.WhisperX.Diarize,
		Language:    cfg.WhisperX.Language,
	}
}

func (t *Transcriber) Cancel() { t.runner.Cancel() }

func (t *Transcriber) HealthCheck(context.Context) stage.Health {
	if ready, detail := deps.Summarize(deps.CheckBinaries(deps.WhisperX())); !ready {
		return stage.Unhealthy(stageName, detail)
	}
	if t.cfg.WhisperX.Diarize && t.cfg.WhisperX.HFToken == "" {
		return stage.Unhealthy(stageName, "diarization requires whisperx.hf_token or HF_TOKEN")
	}
	return stage.Healthy(stageName)
}

// Execute writes transcript/<name>.json.
func (t *Transcriber) Execute(ctx context.Context, in stage.Input) (stage.Outcome, error) {
	t.runner.Reset()
	logger := in.Log()
	art := in.Artifacts.Clone()

	audio, err := LocateAudio(art, in.Config.VideoPath)
	if err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrNotFound, stageName, "locate audio",
			"enable extract_audio or place an audio file next to the video", err)
	}

	vocab := art.Vocabulary
	if len(vocab) == 0 && art.VocabularyFile != "" {
		if vocab, err = slides.ReadVocabulary(art.VocabularyFile); err != nil {
			logger.Warn("vocabulary unreadable; transcribing without it", logging.Error(err))
		}
	}

	outDir := filepath.Join(art.OutputDir, "transcript")
	in.Report(0, fmt.Sprintf("Transcribing %s with %s", filepath.Base(audio), t.service.Model()))
	result, err := t.service.Transcribe(ctx, whisperx.Request{
		Source:        audio,
		OutputDir:     outDir,
		InitialPrompt: strings.Join(vocab, ", "),
		OnLine:        in.Line,
	})
	if err != nil {
		return stage.Outcome{}, services.StageFailure(stageName, "whisperx", t.runner.Tail(), err)
	}

	dest := filepath.Join(outDir, art.VideoName+".json")
	if result.JSONPath != dest {
		if err := os.Rename(result.JSONPath, dest); err != nil {
			return stage.Outcome{}, services.Wrap(services.ErrStageExecution, stageName, "rename transcript", "", err)
		}
	}
	logger.Info("transcription complete",
		logging.Int("segments", len(result.Segments)),
		logging.String("transcript", dest),
	)

	art.TranscriptJSON = dest
	in.Report(100, fmt.Sprintf("%d segments transcribed", len(result.Segments)))
	return stage.Outcome{Artifacts: art, Outputs: []string{dest}}, nil
}

// LocateAudio returns the extracted audio when present, otherwise the first
// sibling of the video (or file in the output directory) named <video
// name><ext> for a known audio extension.
func LocateAudio(art stage.Artifacts, videoPath string) (string, error) {
	if art.AudioPath != "" {
		if _, err := os.Stat(art.AudioPath); err == nil {
			return art.AudioPath, nil
		}
	}
	name := art.VideoName
	if name == "" {
		base := filepath.Base(videoPath)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	dirs := []string{art.OutputDir, filepath.Dir(videoPath)}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, ext := range AudioExtensions {
			candidate := filepath.Join(dir, name+ext)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("no audio file for %q", name)
}
