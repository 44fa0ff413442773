package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"video2notes/internal/runconfig"
)

// ErrAPIUnavailable reports that no daemon address is configured.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// RequestIDHeader carries the client-generated correlation id.
const RequestIDHeader = "X-Request-ID"

// Error is a non-2xx response from the daemon.
type Error struct {
	StatusCode int
	Message    string
	Problems   []string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if len(e.Problems) > 0 {
		return fmt.Sprintf("api %d: %s (%s)", e.StatusCode, msg, strings.Join(e.Problems, "; "))
	}
	return fmt.Sprintf("api %d: %s", e.StatusCode, msg)
}

// StatusCode returns the HTTP status of an *Error, or zero.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Client talks to the daemon's HTTP API.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

// EventQuery selects progress events.
type EventQuery struct {
	Since  uint64
	Limit  int
	Follow bool
}

// NewClient returns a client for the daemon at bind. An empty bind yields a
// nil client whose methods return ErrAPIUnavailable.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base: base,
		// No timeout - follow mode blocks waiting for events until caller cancels.
		http:  &http.Client{},
		token: strings.TrimSpace(token),
	}, nil
}

// Status returns the daemon and current run status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// Health returns dependency and stage readiness.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &out)
	return out, err
}

// StartRun submits a run configuration.
func (c *Client) StartRun(ctx context.Context, rc runconfig.RunConfig) (RunStatus, error) {
	var out StartRunResponse
	err := c.do(ctx, http.MethodPost, "/api/runs", nil, rc, &out)
	return out.Run, err
}

// StopRun stops the active run and returns its final status.
func (c *Client) StopRun(ctx context.Context) (RunStatus, error) {
	var out RunStatus
	err := c.do(ctx, http.MethodPost, "/api/runs/stop", nil, nil, &out)
	return out, err
}

// Runs lists archived runs, newest first.
func (c *Client) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var out RunListResponse
	err := c.do(ctx, http.MethodGet, "/api/runs", values, nil, &out)
	return out.Runs, err
}

// Run returns one archived run.
func (c *Client) Run(ctx context.Context, id string) (RunDetail, error) {
	var out RunDetailResponse
	err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, nil, &out)
	return out.Run, err
}

// Checkpoints lists open checkpoints.
func (c *Client) Checkpoints(ctx context.Context) ([]CheckpointPrompt, error) {
	var out CheckpointListResponse
	err := c.do(ctx, http.MethodGet, "/api/checkpoints", nil, nil, &out)
	return out.Checkpoints, err
}

// Resolve answers the checkpoint open for stage.
func (c *Client) Resolve(ctx context.Context, stage string, payload json.RawMessage) error {
	return c.do(ctx, http.MethodPost, "/api/checkpoints/"+url.PathEscape(stage), nil, payload, nil)
}

// Events fetches progress events after q.Since.
func (c *Client) Events(ctx context.Context, q EventQuery) (EventStreamResponse, error) {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	var out EventStreamResponse
	err := c.do(ctx, http.MethodGet, "/api/events", values, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		var data []byte
		switch v := body.(type) {
		case json.RawMessage:
			data = v
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}
			data = encoded
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var payload ErrorResponse
		if raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*1024)); readErr == nil {
			if json.Unmarshal(raw, &payload) == nil {
				apiErr.Message = payload.Error
				apiErr.Problems = payload.Problems
			} else {
				apiErr.Message = strings.TrimSpace(string(raw))
			}
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
