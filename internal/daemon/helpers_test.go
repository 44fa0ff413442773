package daemon

import (
	"context"

	"video2notes/internal/events"
	"video2notes/internal/stage"
)

type noopAdapter struct{}

func (noopAdapter) Execute(_ context.Context, in stage.Input) (stage.Outcome, error) {
	return stage.Outcome{Artifacts: in.Artifacts}, nil
}

func (noopAdapter) Cancel() {}

func eventFor(message string) events.Event {
	return events.Event{Message: message, Status: "running", Level: "info"}
}
