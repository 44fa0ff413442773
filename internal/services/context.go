package services

import "context"

type contextKey int

const (
	runIDKey contextKey = iota
	stageKey
	requestIDKey
)

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func valueFrom(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithRunID tags ctx with the run it belongs to. Blank ids leave ctx unchanged.
func WithRunID(ctx context.Context, id string) context.Context { return withValue(ctx, runIDKey, id) }

// RunIDFromContext returns the run id set by WithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) { return valueFrom(ctx, runIDKey) }

// WithStage tags ctx with the executing stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage set by WithStage.
func StageFromContext(ctx context.Context) (string, bool) { return valueFrom(ctx, stageKey) }

// WithRequestID tags ctx with the API request id used for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) { return valueFrom(ctx, requestIDKey) }
