package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"video2notes/internal/api"
	"video2notes/internal/runconfig"
)

func TestNewClientEmptyBind(t *testing.T) {
	client, err := api.NewClient("", "")
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client != nil {
		t.Fatal("expected nil client for empty bind")
	}
	if _, err := client.Status(context.Background()); !errors.Is(err, api.ErrAPIUnavailable) {
		t.Fatalf("expected ErrAPIUnavailable, got %v", err)
	}
}

func TestClientEventsBuildsQueryAndDecodes(t *testing.T) {
	var gotQuery url.Values
	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get(api.RequestIDHeader)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.EventStreamResponse{
			Events: []api.Event{{Sequence: 4, Message: "Transcribe started", Percent: 50}},
			Next:   4,
		})
	}))
	defer srv.Close()

	client, err := api.NewClient(srv.URL, "secret")
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	resp, err := client.Events(context.Background(), api.EventQuery{Since: 3, Limit: 50, Follow: true})
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(resp.Events) != 1 || resp.Next != 4 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	for key, want := range map[string]string{"since": "3", "limit": "50", "follow": "1"} {
		if got := gotQuery.Get(key); got != want {
			t.Fatalf("query[%s]: expected %q, got %q", key, want, got)
		}
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Fatal("expected a request id header")
	}
}

func TestClientStartRunPostsConfig(t *testing.T) {
	var got runconfig.RunConfig
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/runs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.StartRunResponse{Run: api.RunStatus{RunID: "r1", Status: "running"}})
	}))
	defer srv.Close()

	client, _ := api.NewClient(srv.URL, "")
	rc := runconfig.Default()
	rc.VideoPath = "/videos/talk.mp4"
	run, err := client.StartRun(context.Background(), rc)
	if err != nil {
		t.Fatalf("StartRun error: %v", err)
	}
	if run.RunID != "r1" || run.Status != "running" {
		t.Fatalf("unexpected run: %+v", run)
	}
	if got.VideoPath != rc.VideoPath || !got.DoLabelSpeakers {
		t.Fatalf("server saw %+v", got)
	}
}

func TestClientResolveSendsRawPayload(t *testing.T) {
	var body string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, _ := api.NewClient(srv.URL, "")
	if err := client.Resolve(context.Background(), "label-speakers", json.RawMessage(`{"names":{}}`)); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if path != "/api/checkpoints/label-speakers" {
		t.Fatalf("unexpected path %q", path)
	}
	if body != `{"names":{}}` {
		t.Fatalf("payload re-encoded: %q", body)
	}
}

func TestClientDecodesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{
			Error:    "invalid run configuration",
			Problems: []string{"video_path is required"},
		})
	}))
	defer srv.Close()

	client, _ := api.NewClient(srv.URL, "")
	_, err := client.StartRun(context.Background(), runconfig.Default())
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.Error, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || len(apiErr.Problems) != 1 {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if api.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("StatusCode = %d", api.StatusCode(err))
	}
}

func TestIsAPIUnavailable(t *testing.T) {
	if !api.IsAPIUnavailable(api.ErrAPIUnavailable) {
		t.Fatal("expected ErrAPIUnavailable to be unavailable")
	}
	if api.IsAPIUnavailable(errors.New("other")) {
		t.Fatal("did not expect generic error to be unavailable")
	}

	client, _ := api.NewClient("127.0.0.1:1", "")
	_, err := client.Status(context.Background())
	if !api.IsAPIUnavailable(err) {
		t.Fatalf("expected connection refusal to be unavailable, got %v", err)
	}
}
