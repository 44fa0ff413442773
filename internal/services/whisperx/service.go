package whisperx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Runner executes a command, streaming output lines to onLine.
type Runner interface {
	Run(ctx context.Context, onLine func(string), name string, args ...string) error
}

type Service struct {
	cfg    Config
	runner Runner
}

func NewService(cfg Config, runner Runner) *Service {
	return &Service{cfg: cfg.normalized(), runner: runner}
}

// Model is the effective model name.
func (s *Service) Model() string { return s.cfg.Model }

// Request describes one transcription job. OutputDir defaults to the
// directory holding Source.
type Request struct {
	Source        string
	OutputDir     string
	InitialPrompt string
	OnLine        func(string)
}

type Result struct {
	JSONPath string
	Segments []Segment
}

// Transcribe runs WhisperX over req.Source and loads the JSON it produced.
func (s *Service) Transcribe(ctx context.Context, req Request) (Result, error) {
	if req.Source == "" {
		return Result{}, errors.New("transcribe: source path required")
	}
	dir := req.OutputDir
	if dir == "" {
		dir = filepath.Dir(req.Source)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("transcribe: create %s: %w", dir, err)
	}

	if err := s.runner.Run(ctx, req.OnLine, UVXCommand, s.buildArgs(req.Source, dir, req.InitialPrompt)...); err != nil {
		return Result{}, fmt.Errorf("whisperx: %w", err)
	}

	out := jsonPathFor(req.Source, dir)
	segments, err := LoadSegments(out)
	if err != nil {
		return Result{JSONPath: out}, fmt.Errorf("whisperx output: %w", err)
	}
	return Result{JSONPath: out, Segments: segments}, nil
}
