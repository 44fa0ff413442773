package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 8 << 20

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		// Some providers answer with the streaming shape even when stream=false.
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// statusError is a non-2xx reply from the provider.
type statusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.Code, snippet(e.Body))
}

// emptyReplyError is a 2xx reply without usable content.
type emptyReplyError struct {
	FinishReason string
	Refusal      string
	Body         string
}

func (e *emptyReplyError) Error() string {
	return fmt.Sprintf("llm request: empty content (finish_reason=%q, refusal=%q, body=%s)",
		e.FinishReason, e.Refusal, snippet(e.Body))
}

func (c *Client) send(ctx context.Context, payload chatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llm request: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request (timeout %s): %w", c.http.Timeout, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("llm request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		wait, _ := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return "", &statusError{Code: resp.StatusCode, Body: string(raw), RetryAfter: wait}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("llm request: decode response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("llm request: api error: %s", strings.TrimSpace(decoded.Error.Message))
	}
	empty := &emptyReplyError{Body: string(raw)}
	for _, choice := range decoded.Choices {
		for _, content := range []string{choice.Message.Content, choice.Delta.Content} {
			if strings.TrimSpace(content) != "" {
				return content, nil
			}
		}
		if empty.FinishReason == "" {
			empty.FinishReason = choice.FinishReason
		}
		if empty.Refusal == "" {
			empty.Refusal = choice.Message.Refusal
		}
	}
	return "", empty
}

func snippet(s string) string {
	clean := strings.Join(strings.Fields(s), " ")
	if clean == "" {
		return "<empty>"
	}
	if r := []rune(clean); len(r) > 160 {
		return string(r[:160]) + "..."
	}
	return clean
}
