package checkpoint_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video2notes/internal/checkpoint"
	"video2notes/internal/services"
)

func slidesPrompt(n int) checkpoint.SlidesPrompt {
	p := checkpoint.SlidesPrompt{}
	for i := 0; i < n; i++ {
		p.Slides = append(p.Slides, checkpoint.SlideCandidate{Index: i, Timestamp: float64(i)})
	}
	return p
}

func TestResolveUnblocksAwait(t *testing.T) {
	mgr := checkpoint.NewManager()
	cp, err := mgr.Open("extract-slides", checkpoint.KindSlides, slidesPrompt(3))
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		assert.NoError(t, mgr.Resolve("extract-slides", json.RawMessage(`{"accepted":[0,2],"vocabulary":["gRPC"]}`)))
	}()

	payload, err := mgr.Await(context.Background(), cp, time.Second)
	require.NoError(t, err)
	var sel checkpoint.SlideSelection
	require.NoError(t, checkpoint.Decode(payload, &sel))
	assert.Equal(t, []int{0, 2}, sel.Accepted)
	assert.Equal(t, []string{"gRPC"}, sel.Vocabulary)
	assert.Empty(t, mgr.Pending())
}

func TestResolveIsSingleUse(t *testing.T) {
	mgr := checkpoint.NewManager()
	cp, err := mgr.Open("preprocess", checkpoint.KindROI, checkpoint.ROIPrompt{Width: 1920, Height: 1080})
	require.NoError(t, err)

	require.NoError(t, mgr.Resolve("preprocess", json.RawMessage(`{"full_frame":true}`)))
	err = mgr.Resolve("preprocess", json.RawMessage(`{"slide":[0,0,10,10]}`))
	assert.ErrorIs(t, err, checkpoint.ErrAlreadyResolved)

	payload, err := mgr.Await(context.Background(), cp, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"full_frame":true}`, string(payload))

	err = mgr.Resolve("preprocess", json.RawMessage(`{"full_frame":true}`))
	assert.ErrorIs(t, err, checkpoint.ErrAlreadyResolved)
	assert.True(t, mgr.Answered("preprocess"))

	mgr.Forget("preprocess")
	assert.False(t, mgr.Answered("preprocess"))
	err = mgr.Resolve("preprocess", json.RawMessage(`{"full_frame":true}`))
	assert.ErrorIs(t, err, checkpoint.ErrNoCheckpoint)
}

func TestInvalidPayloadKeepsCheckpointOpen(t *testing.T) {
	mgr := checkpoint.NewManager()
	_, err := mgr.Open("preprocess", checkpoint.KindROI, checkpoint.ROIPrompt{Width: 100, Height: 100})
	require.NoError(t, err)

	cases := []string{
		`{"slide":[0,0,10]}`,
		`{"slide":[0,0,0,10]}`,
		`{"bogus":true}`,
		`{"full_frame":false}`,
		`{"slide":[50,50,80,80]}`,
		`{"slide":[0,0,10,10],"speaker":[0,0,0,10]}`,
		`{"slide":[0,0,10,10],"subtitle":[0,90,100,20]}`,
		`not json`,
	}
	for _, payload := range cases {
		err := mgr.Resolve("preprocess", json.RawMessage(payload))
		assert.ErrorIs(t, err, services.ErrValidation, payload)
	}
	require.Len(t, mgr.Pending(), 1)
	assert.NoError(t, mgr.Resolve("preprocess", json.RawMessage(`{"slide":[10,10,80,80]}`)))
}

func TestSlideIndicesMustExist(t *testing.T) {
	mgr := checkpoint.NewManager()
	_, err := mgr.Open("extract-slides", checkpoint.KindSlides, slidesPrompt(2))
	require.NoError(t, err)
	err = mgr.Resolve("extract-slides", json.RawMessage(`{"accepted":[0,5]}`))
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestSpeakerNamesRejectUnknownIDs(t *testing.T) {
	mgr := checkpoint.NewManager()
	prompt := checkpoint.SpeakersPrompt{Speakers: []checkpoint.SpeakerCandidate{{ID: "SPEAKER_00"}, {ID: "SPEAKER_01"}}}
	_, err := mgr.Open("label-speakers", checkpoint.KindSpeakers, prompt)
	require.NoError(t, err)

	err = mgr.Resolve("label-speakers", json.RawMessage(`{"names":{"SPEAKER_07":"Eve"}}`))
	assert.ErrorIs(t, err, services.ErrValidation)
	require.NoError(t, mgr.Resolve("label-speakers", json.RawMessage(`{"names":{"SPEAKER_00":"Alice"}}`)))
}

func TestSpeakerNamesFallBackToID(t *testing.T) {
	names := checkpoint.SpeakerNames{Names: map[string]string{"SPEAKER_00": "Alice", "SPEAKER_02": ""}}
	assert.Equal(t, "Alice", names.Name("SPEAKER_00"))
	assert.Equal(t, "SPEAKER_01", names.Name("SPEAKER_01"))
	assert.Equal(t, "SPEAKER_02", names.Name("SPEAKER_02"))
}

func TestAwaitTimeout(t *testing.T) {
	mgr := checkpoint.NewManager()
	cp, err := mgr.Open("preprocess", checkpoint.KindROI, checkpoint.ROIPrompt{})
	require.NoError(t, err)

	_, err = mgr.Await(context.Background(), cp, 20*time.Millisecond)
	assert.ErrorIs(t, err, services.ErrTimeout)
	assert.Empty(t, mgr.Pending())
	assert.ErrorIs(t, mgr.Resolve("preprocess", json.RawMessage(`{"full_frame":true}`)), checkpoint.ErrNoCheckpoint)
}

func TestCancelUnblocksAwait(t *testing.T) {
	mgr := checkpoint.NewManager()
	cp, err := mgr.Open("label-speakers", checkpoint.KindSpeakers, checkpoint.SpeakersPrompt{})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := mgr.Await(context.Background(), cp, 0)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	mgr.CancelAll()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, services.ErrCancelled))
		assert.Equal(t, services.OutcomeCancelled, services.Classify(err))
	case <-time.After(2 * time.Second):
		t.Fatal("await did not return after cancel")
	}
}

func TestContextCancelUnblocksAwait(t *testing.T) {
	mgr := checkpoint.NewManager()
	cp, err := mgr.Open("preprocess", checkpoint.KindROI, checkpoint.ROIPrompt{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mgr.Await(ctx, cp, 0)
	assert.ErrorIs(t, err, services.ErrCancelled)
}

func TestOpenRejectsDuplicateStage(t *testing.T) {
	mgr := checkpoint.NewManager()
	_, err := mgr.Open("preprocess", checkpoint.KindROI, checkpoint.ROIPrompt{})
	require.NoError(t, err)
	_, err = mgr.Open("preprocess", checkpoint.KindROI, checkpoint.ROIPrompt{})
	assert.ErrorIs(t, err, checkpoint.ErrDuplicate)
}

func TestPendingReportsDeadline(t *testing.T) {
	mgr := checkpoint.NewManager()
	cp, err := mgr.Open("preprocess", checkpoint.KindROI, checkpoint.ROIPrompt{FramePath: "/tmp/f.png"})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = mgr.Await(context.Background(), cp, time.Minute)
		close(done)
	}()
	require.Eventually(t, func() bool {
		pending := mgr.Pending()
		return len(pending) == 1 && pending[0].Deadline != nil
	}, time.Second, 5*time.Millisecond)

	pending := mgr.Pending()
	assert.Equal(t, checkpoint.KindROI, pending[0].Kind)
	assert.Contains(t, string(pending[0].Prompt), "/tmp/f.png")
	mgr.Cancel("preprocess")
	<-done
}

func TestROIRect(t *testing.T) {
	assert.Equal(t, [4]int{0, 0, 640, 480}, checkpoint.ROIResolution{FullFrame: true}.Rect(640, 480))
	assert.Equal(t, [4]int{1, 2, 3, 4}, checkpoint.ROIResolution{Slide: []int{1, 2, 3, 4}}.Rect(640, 480))
}

func TestROIMasksAcceptedAndNamed(t *testing.T) {
	mgr := checkpoint.NewManager()
	cp, err := mgr.Open("preprocess", checkpoint.KindROI, checkpoint.ROIPrompt{Width: 1920, Height: 1080})
	require.NoError(t, err)
	require.NoError(t, mgr.Resolve("preprocess", json.RawMessage(`{"slide":[0,0,1440,1080],"speaker":[1500,800,400,260]}`)))

	payload, err := mgr.Await(context.Background(), cp, 0)
	require.NoError(t, err)
	var roi checkpoint.ROIResolution
	require.NoError(t, checkpoint.Decode(payload, &roi))
	assert.Equal(t, map[string][4]int{"speaker": {1500, 800, 400, 260}}, roi.Masks())
}
