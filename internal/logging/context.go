package logging

import (
	"context"
	"log/slog"

	"video2notes/internal/services"
)

// Structured field keys shared by every package.
const (
	FieldComponent     = "component"
	FieldRunID         = "run_id"
	FieldStage         = "stage"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldErrorHint     = "error_hint"
	FieldAlert         = "alert"
)

var contextFields = []struct {
	key    string
	lookup func(context.Context) (string, bool)
}{
	{FieldRunID, services.RunIDFromContext},
	{FieldStage, services.StageFromContext},
	{FieldCorrelationID, services.RequestIDFromContext},
}

// ContextFields returns the run id, stage and request id carried by ctx.
func ContextFields(ctx context.Context) []Attr {
	if ctx == nil {
		return nil
	}
	var attrs []Attr
	for _, f := range contextFields {
		if v, ok := f.lookup(ctx); ok {
			attrs = append(attrs, slog.String(f.key, v))
		}
	}
	return attrs
}

// WithContext scopes logger to the fields carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	attrs := ContextFields(ctx)
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}
