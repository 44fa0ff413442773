package stage_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video2notes/internal/checkpoint"
	"video2notes/internal/services"
	"video2notes/internal/stage"
)

func TestRunnerStreamsLines(t *testing.T) {
	runner := stage.NewRunner(time.Second, 2)
	var mu sync.Mutex
	var lines []string
	err := runner.Run(context.Background(), func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	}, "/bin/sh", "-c", "echo one; echo two >&2; printf 'three\\rfour\\n'")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"one", "two", "three", "four"}, lines)
	assert.Len(t, runner.Tail(), 2)
}

func TestRunnerOutputCapturesStdout(t *testing.T) {
	runner := stage.NewRunner(time.Second, 5)
	out, err := runner.Output(context.Background(), "/bin/sh", "-c", "echo '{\"ok\":true}'; echo noise >&2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, strings.TrimSpace(string(out)))
	assert.Equal(t, []string{"noise"}, runner.Tail())
}

func TestRunnerFailureCarriesTail(t *testing.T) {
	runner := stage.NewRunner(time.Second, 20)
	err := runner.Run(context.Background(), nil, "/bin/sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrExternalTool)
	assert.ErrorIs(t, err, services.ErrStageExecution)
	assert.Equal(t, []string{"boom"}, services.LogTail(err))
}

func TestRunnerCancelTerminatesProcessGroup(t *testing.T) {
	runner := stage.NewRunner(time.Second, 5)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runner.Run(context.Background(), nil, "/bin/sh", "-c", "sleep 30 & wait")
	}()
	time.Sleep(100 * time.Millisecond)
	runner.Cancel()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, services.ErrCancelled), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("process was not terminated")
	}

	err := runner.Run(context.Background(), nil, "/bin/true")
	assert.ErrorIs(t, err, services.ErrCancelled)
	runner.Reset()
	assert.NoError(t, runner.Run(context.Background(), nil, "/bin/sh", "-c", "exit 0"))
}

func TestRunnerEscalatesToKillAfterGrace(t *testing.T) {
	runner := stage.NewRunner(150*time.Millisecond, 5)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- runner.Run(ctx, nil, "/bin/sh", "-c", "trap '' TERM; sleep 30")
	}()
	time.Sleep(100 * time.Millisecond)
	started := time.Now()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, services.ErrCancelled)
		assert.Less(t, time.Since(started), 4*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("SIGKILL escalation did not happen")
	}
}

func TestRunnerStartFailure(t *testing.T) {
	runner := stage.NewRunner(time.Second, 5)
	err := runner.Run(context.Background(), nil, "/definitely/not/a/binary")
	assert.ErrorIs(t, err, services.ErrExternalTool)
}

func TestTailKeepsNewest(t *testing.T) {
	tail := stage.NewTail(3)
	for _, line := range []string{"a", "b", "c", "d", "e"} {
		tail.Add(line)
	}
	assert.Equal(t, []string{"c", "d", "e"}, tail.Lines())
	tail.Reset()
	assert.Empty(t, tail.Lines())
}

func TestInputAskDecodesResolution(t *testing.T) {
	var gotKind checkpoint.Kind
	in := stage.Input{
		Stage: "preprocess",
		Checkpoint: func(ctx context.Context, kind checkpoint.Kind, prompt any) (json.RawMessage, error) {
			gotKind = kind
			return json.RawMessage(`{"slide":[1,2,3,4]}`), nil
		},
	}
	var roi checkpoint.ROIResolution
	require.NoError(t, in.Ask(context.Background(), checkpoint.KindROI, checkpoint.ROIPrompt{}, &roi))
	assert.Equal(t, checkpoint.KindROI, gotKind)
	assert.Equal(t, [4]int{1, 2, 3, 4}, roi.Rect(10, 10))
}

func TestInputAskWithoutHandler(t *testing.T) {
	in := stage.Input{Stage: "preprocess"}
	var roi checkpoint.ROIResolution
	err := in.Ask(context.Background(), checkpoint.KindROI, nil, &roi)
	assert.ErrorIs(t, err, services.ErrConfiguration)
}

func TestArtifactsHelpers(t *testing.T) {
	a := stage.Artifacts{NotesFile: "notes.md", Vocabulary: []string{"x"}}
	assert.Equal(t, "notes.md", a.CurrentNotes())
	a.LabeledNotes = "labeled.md"
	assert.Equal(t, "labeled.md", a.CurrentNotes())

	clone := a.Clone()
	clone.Vocabulary[0] = "y"
	assert.Equal(t, "x", a.Vocabulary[0])
	assert.False(t, a.HasROI())
	a.ROI = [4]int{0, 0, 10, 10}
	assert.True(t, a.HasROI())
}
