package logging

import (
	"log/slog"
	"time"
)

// Attr is a structured log field.
type Attr = slog.Attr

func String(key, value string) Attr { return slog.String(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

// Error records err under the "error" key.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Event tags a line with its event_type (stage_start, run_failed, ...).
func Event(eventType string) Attr { return slog.String(FieldEventType, eventType) }

// Hint attaches the operator-facing next step.
func Hint(hint string) Attr { return slog.String(FieldErrorHint, hint) }

// Alert marks a line that should stand out when scanning structured logs.
func Alert(kind string) Attr { return slog.String(FieldAlert, kind) }

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger { return slog.New(slog.DiscardHandler) }

// NewComponentLogger scopes logger to component. A nil logger discards.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(slog.String(FieldComponent, component))
}
