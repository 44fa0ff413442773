package slides

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"video2notes/internal/checkpoint"
	"video2notes/internal/config"
	"video2notes/internal/deps"
	"video2notes/internal/logging"
	"video2notes/internal/media"
	"video2notes/internal/services"
	"video2notes/internal/stage"
)

const stageName = "extract-slides"

// OCRFunc returns the text recognized in an image.
type OCRFunc func(ctx context.Context, imagePath string) (string, error)

// Extractor is the extract-slides stage: it samples frames inside the slide
// region, keeps the ones that differ from the previous slide, and lets the
// user curate the result.
type Extractor struct {
	cfg    *config.Config
	runner *stage.Runner
	tools  media.Tools
	hash   HashFunc
	ocr    OCRFunc
}

// ExtractorOption customizes an Extractor.
type ExtractorOption func(*Extractor)

// WithHashFunc replaces the perceptual hash used for frames.
func WithHashFunc(fn HashFunc) ExtractorOption {
	return func(e *Extractor) {
		if fn != nil {
			e.hash = fn
		}
	}
}

// WithOCR replaces the tesseract-backed OCR.
func WithOCR(fn OCRFunc) ExtractorOption {
	return func(e *Extractor) { e.ocr = fn }
}

// WithTools replaces the media tools (and their runner).
func WithTools(tools media.Tools) ExtractorOption {
	return func(e *Extractor) { e.tools = tools }
}

// NewExtractor constructs the extract-slides adapter.
func NewExtractor(cfg *config.Config, opts ...ExtractorOption) *Extractor {
	runner := stage.NewRunner(cfg.StopGrace(), cfg.Workflow.LogTailLines)
	e := &Extractor{
		cfg:    cfg,
		runner: runner,
		tools:  media.Tools{FFmpeg: cfg.FFmpegBinary(), FFprobe: cfg.FFprobeBinary(), Runner: runner},
		hash:   HashFile,
	}
	e.ocr = e.tesseract
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cancel stops any running ffmpeg or tesseract process.
func (e *Extractor) Cancel() { e.runner.Cancel() }

// HealthCheck verifies ffmpeg (and tesseract when OCR is on) can be found.
func (e *Extractor) HealthCheck(context.Context) stage.Health {
	reqs := deps.FFmpeg(e.cfg)
	reqs = append(reqs, deps.OCR(e.cfg)...)
	if ready, detail := deps.Summarize(deps.CheckBinaries(reqs)); !ready {
		return stage.Unhealthy(stageName, detail)
	}
	return stage.Healthy(stageName)
}

// Execute samples, deduplicates, optionally OCRs, and curates slides.
func (e *Extractor) Execute(ctx context.Context, in stage.Input) (stage.Outcome, error) {
	e.runner.Reset()
	logger := in.Log()
	art := in.Artifacts.Clone()

	slidesDir := filepath.Join(art.OutputDir, "slides")
	if err := os.MkdirAll(slidesDir, 0o755); err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrStageExecution, stageName, "create slides dir", "", err)
	}
	framesDir, err := os.MkdirTemp(art.OutputDir, ".frames-")
	if err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrStageExecution, stageName, "create frames dir", "", err)
	}
	defer os.RemoveAll(framesDir)

	fps := e.cfg.Slides.SampleFPS
	in.Report(0, fmt.Sprintf("Sampling frames at %.2g fps", fps))
	masks := make([]media.Rect, len(art.Masks))
	for i, m := range art.Masks {
		masks[i] = media.Rect(m)
	}
	if err := e.tools.SampleFrames(ctx, in.Config.VideoPath, fps, media.Rect(art.ROI), masks, framesDir, in.Line); err != nil {
		return stage.Outcome{}, e.failure("sample frames", err)
	}

	paths, err := ListFrames(framesDir)
	if err != nil {
		return stage.Outcome{}, e.failure("list frames", err)
	}
	if len(paths) == 0 {
		return stage.Outcome{}, services.Wrap(services.ErrValidation, stageName, "sample frames", "ffmpeg produced no frames", nil)
	}
	in.Report(30, fmt.Sprintf("Hashing %d frames", len(paths)))

	hashes, err := HashFrames(ctx, paths, e.cfg.Slides.HashWorkers, e.hash)
	if err != nil {
		if ctx.Err() != nil {
			return stage.Outcome{}, services.Wrap(services.ErrCancelled, stageName, "hash frames", "", ctx.Err())
		}
		return stage.Outcome{}, e.failure("hash frames", err)
	}

	threshold := in.Config.Threshold(e.cfg.Slides.DedupThreshold)
	records := Deduplicate(BuildSamples(paths, hashes, fps, 0), threshold)
	logger.Info("slides deduplicated",
		logging.Int("frames", len(paths)),
		logging.Int("slides", len(records)),
		logging.Int("threshold", threshold),
	)
	in.Report(60, fmt.Sprintf("Kept %d of %d frames", len(records), len(paths)))

	for i := range records {
		name := fmt.Sprintf("slide_%04d.png", records[i].GroupID)
		if err := copyFile(records[i].SourcePath, filepath.Join(slidesDir, name)); err != nil {
			return stage.Outcome{}, e.failure("copy slide", err)
		}
		records[i].ImagePath = filepath.ToSlash(filepath.Join("slides", name))
	}

	if e.cfg.Slides.OCREnabled && e.ocr != nil {
		for i := range records {
			text, err := e.ocr(ctx, filepath.Join(art.OutputDir, records[i].ImagePath))
			if err != nil {
				if ctx.Err() != nil {
					return stage.Outcome{}, services.Wrap(services.ErrCancelled, stageName, "ocr", "", ctx.Err())
				}
				logger.Warn("ocr failed; continuing without text",
					logging.String("image", records[i].ImagePath),
					logging.Error(err),
					logging.Hint("install tesseract or set slides.ocr_enabled = false"),
				)
				continue
			}
			records[i].OCRText = strings.TrimSpace(text)
		}
		in.Report(75, "OCR complete")
	}

	originalPath := filepath.Join(slidesDir, OriginalRecordsFile)
	if err := WriteRecords(originalPath, records); err != nil {
		return stage.Outcome{}, e.failure("write records", err)
	}

	selected := records
	var vocabulary []string
	if !e.cfg.Workflow.AutoAcceptSlides && len(records) > 0 {
		in.Report(80, "Waiting for slide selection")
		var sel checkpoint.SlideSelection
		if err := in.Ask(ctx, checkpoint.KindSlides, candidatesPrompt(art.OutputDir, records), &sel); err != nil {
			return stage.Outcome{}, err
		}
		selected, err = ApplySelection(records, sel.Accepted)
		if err != nil {
			return stage.Outcome{}, services.Wrap(services.ErrValidation, stageName, "apply selection", "", err)
		}
		vocabulary = sel.Vocabulary
		for _, rec := range records {
			if !containsGroup(selected, rec.GroupID) {
				_ = os.Remove(filepath.Join(art.OutputDir, rec.ImagePath))
			}
		}
	}

	recordsPath := filepath.Join(slidesDir, RecordsFile)
	if err := WriteRecords(recordsPath, selected); err != nil {
		return stage.Outcome{}, e.failure("write records", err)
	}
	vocabPath := filepath.Join(slidesDir, VocabularyFile)
	terms, err := WriteVocabulary(vocabPath, vocabulary)
	if err != nil {
		return stage.Outcome{}, e.failure("write vocabulary", err)
	}

	art.SlidesDir = slidesDir
	art.SlidesJSON = recordsPath
	art.VocabularyFile = vocabPath
	art.Vocabulary = terms
	in.Report(100, fmt.Sprintf("%d slides selected", len(selected)))
	return stage.Outcome{
		Artifacts: art,
		Outputs:   []string{originalPath, recordsPath, vocabPath},
	}, nil
}

func (e *Extractor) tesseract(ctx context.Context, imagePath string) (string, error) {
	lang := e.cfg.Slides.OCRLanguage
	if lang == "" {
		lang = "eng"
	}
	out, err := e.runner.Output(ctx, deps.TesseractCommand, imagePath, "stdout", "-l", lang)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (e *Extractor) failure(op string, err error) error {
	return services.StageFailure(stageName, op, e.runner.Tail(), err)
}

func candidatesPrompt(outputDir string, records []SlideRecord) checkpoint.SlidesPrompt {
	prompt := checkpoint.SlidesPrompt{Slides: make([]checkpoint.SlideCandidate, len(records))}
	for i, rec := range records {
		prompt.Slides[i] = checkpoint.SlideCandidate{
			Index:     i,
			Timestamp: rec.Timestamp,
			ImagePath: filepath.Join(outputDir, rec.ImagePath),
			OCRText:   rec.OCRText,
		}
	}
	return prompt
}

func containsGroup(records []SlideRecord, groupID int) bool {
	for _, rec := range records {
		if rec.GroupID == groupID {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
