package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool   = errors.New("external tool error")
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
	ErrTimeout        = errors.New("timeout")
	ErrCancelled      = errors.New("cancelled")
	ErrStageExecution = errors.New("stage execution failed")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrStageExecution
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ConfigError lists every problem found while validating a run configuration.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return ErrConfiguration.Error()
	}
	return fmt.Sprintf("%s: %s", ErrConfiguration, strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// NewConfigError returns nil when problems is empty.
func NewConfigError(problems ...string) error {
	filtered := make([]string, 0, len(problems))
	for _, p := range problems {
		if p = strings.TrimSpace(p); p != "" {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &ConfigError{Problems: filtered}
}

// StageError reports a failed stage together with the last lines it logged.
type StageError struct {
	Stage     string
	Operation string
	LogTail   []string
	Err       error
}

func (e *StageError) Error() string {
	var b strings.Builder
	b.WriteString(buildDetail(e.Stage, e.Operation, ""))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.LogTail) > 0 {
		b.WriteString("\n--- last output ---\n")
		b.WriteString(strings.Join(e.LogTail, "\n"))
	}
	return b.String()
}

// Unwrap exposes both the stage marker and the underlying cause so callers can
// match on ErrStageExecution as well as on the original failure.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStageExecution}
	}
	return []error{ErrStageExecution, e.Err}
}

// StageFailure wraps err as a StageError unless it already carries stage context
// or represents a cancellation.
func StageFailure(stage, operation string, tail []string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) {
		return err
	}
	var existing *StageError
	if errors.As(err, &existing) {
		if existing.Stage == "" {
			existing.Stage = stage
		}
		if len(existing.LogTail) == 0 {
			existing.LogTail = append([]string(nil), tail...)
		}
		return existing
	}
	return &StageError{
		Stage:     stage,
		Operation: operation,
		LogTail:   append([]string(nil), tail...),
		Err:       err,
	}
}

// LogTail extracts the captured output lines from a StageError, if any.
func LogTail(err error) []string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return append([]string(nil), stageErr.LogTail...)
	}
	return nil
}

// Outcome names the terminal run status an error maps to.
type Outcome string

const (
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Classify maps a terminal run error to the status the orchestrator records.
// Cancellation is kept apart from genuine failures.
func Classify(err error) Outcome {
	if errors.Is(err, ErrCancelled) {
		return OutcomeCancelled
	}
	return OutcomeFailed
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "stage failure"
	}
	return strings.Join(parts, ": ")
}
