package notes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"video2notes/internal/config"
	"video2notes/internal/logging"
	"video2notes/internal/services"
	"video2notes/internal/services/llm"
	"video2notes/internal/stage"
)

const refineStage = "refine-notes"

// Completer sends one prompt to a language model.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CompleterFactory builds a Completer for the given model.
type CompleterFactory func(model string) Completer

// Refiner is the refine-notes stage.
type Refiner struct {
	cfg       *config.Config
	newClient CompleterFactory
}

// RefinerOption customizes a Refiner.
type RefinerOption func(*Refiner)

// WithCompleter replaces the OpenRouter client factory.
func WithCompleter(factory CompleterFactory) RefinerOption {
	return func(r *Refiner) {
		if factory != nil {
			r.newClient = factory
		}
	}
}

// NewRefiner constructs the refine-notes adapter.
func NewRefiner(cfg *config.Config, opts ...RefinerOption) *Refiner {
	r := &Refiner{cfg: cfg}
	r.newClient = func(model string) Completer {
		return llm.NewClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          model,
			Referer:        cfg.LLM.Referer,
			Title:          cfg.LLM.Title,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		})
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cancel is a no-op; in-flight requests stop with the run context.
func (r *Refiner) Cancel() {}

func (r *Refiner) HealthCheck(context.Context) stage.Health {
	if strings.TrimSpace(r.cfg.LLM.APIKey) == "" {
		return stage.Unhealthy(refineStage, "llm.api_key (or OPENROUTER_API_KEY) is not set")
	}
	return stage.Healthy(refineStage)
}

// Execute writes refined_<notes file> next to the notes.
func (r *Refiner) Execute(ctx context.Context, in stage.Input) (stage.Outcome, error) {
	logger := in.Log()
	art := in.Artifacts.Clone()
	source := art.CurrentNotes()
	if source == "" {
		return stage.Outcome{}, services.Wrap(services.ErrNotFound, refineStage, "read notes", "no notes recorded for this run", nil)
	}
	if strings.TrimSpace(r.cfg.LLM.APIKey) == "" {
		return stage.Outcome{}, services.Wrap(services.ErrConfiguration, refineStage, "llm", "llm.api_key is not configured", nil)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrStageExecution, refineStage, "read notes", "", err)
	}
	transcript := string(data)

	model := strings.TrimSpace(in.Config.RefineNotesModel)
	if model == "" {
		model = r.cfg.LLM.Model
	}
	client := r.newClient(model)

	in.Report(0, "Summarizing notes with "+model)
	summary, err := client.Complete(ctx, "", SummaryPrompt(transcript))
	if err != nil {
		return stage.Outcome{}, r.failure(ctx, "summarize", err)
	}
	logger.Debug("notes summary", logging.String("summary", summary))

	chunks := Chunk(Truncate(transcript, in.Config.MaxChars), DefaultChunkMin, DefaultChunkMax)
	var out strings.Builder
	for i, chunk := range chunks {
		in.Report(10+i*85/max(len(chunks), 1), fmt.Sprintf("Refining chunk %d/%d", i+1, len(chunks)))
		refined, err := client.Complete(ctx, "", RefinePrompt(summary, chunk))
		if err != nil {
			return stage.Outcome{}, r.failure(ctx, fmt.Sprintf("refine chunk %d", i+1), err)
		}
		logger.Debug("chunk refined",
			logging.Int("chunk", i+1),
			logging.Int("before_chars", len(chunk)),
			logging.Int("after_chars", len(refined)),
		)
		out.WriteString(refined)
		out.WriteString("\n\n")
	}

	dest := filepath.Join(filepath.Dir(source), "refined_"+filepath.Base(source))
	if err := os.WriteFile(dest, []byte(out.String()), 0o644); err != nil {
		return stage.Outcome{}, services.Wrap(services.ErrStageExecution, refineStage, "write refined notes", "", err)
	}
	logger.Info("notes refined",
		logging.String("model", model),
		logging.Int("chunks", len(chunks)),
		logging.String("notes", dest),
	)

	art.RefinedNotes = dest
	in.Report(100, fmt.Sprintf("Refined %d chunks", len(chunks)))
	return stage.Outcome{Artifacts: art, Outputs: []string{dest}}, nil
}

func (r *Refiner) failure(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrCancelled, refineStage, op, "", err)
	}
	return services.Wrap(services.ErrExternalTool, refineStage, op, "llm request failed", err)
}
