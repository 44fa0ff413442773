package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultEndpoint is the OpenRouter chat completions URL.
const DefaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"

const (
	defaultTimeout     = 120 * time.Second
	defaultTemperature = 0.3
)

// Config holds the connection settings for one model.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Client sends chat completions for a single model.
type Client struct {
	cfg         Config
	http        *http.Client
	temperature float64
	retry       retryPolicy
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRetry sets the attempt count and the backoff bounds.
func WithRetry(attempts int, base, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.attempts = attempts
		c.retry.base = base
		c.retry.max = maxDelay
	}
}

// WithSleeper replaces the wait between attempts. Tests use it to avoid
// real sleeps.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.retry.sleep = sleep
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// NewClient returns a client for cfg.Model.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultEndpoint
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	c := &Client{
		cfg:         cfg,
		http:        &http.Client{Timeout: timeout},
		temperature: defaultTemperature,
		retry:       defaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model is the model requests are sent to.
func (c *Client) Model() string { return c.cfg.Model }

// Complete sends userPrompt, preceded by systemPrompt when it is not empty,
// and returns the model's reply.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return "", errors.New("llm complete: user prompt required")
	}
	if c.cfg.APIKey == "" {
		return "", errors.New("llm complete: api key required")
	}
	if c.cfg.Model == "" {
		return "", errors.New("llm complete: model required")
	}

	req := chatRequest{Model: c.cfg.Model, Temperature: c.temperature}
	if systemPrompt = strings.TrimSpace(systemPrompt); systemPrompt != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: userPrompt})

	var reply string
	err := c.retry.do(ctx, func() error {
		content, err := c.send(ctx, req)
		if err != nil {
			return err
		}
		reply = content
		return nil
	})
	if err != nil {
		return "", err
	}
	return stripFence(reply), nil
}

// stripFence removes a code fence wrapping the whole reply, as models often
// return Markdown inside ```markdown ... ```.
func stripFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return trimmed
	}
	body := strings.TrimSuffix(trimmed[3:], "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], " \t") {
		body = body[nl+1:]
	}
	return strings.TrimSpace(body)
}
