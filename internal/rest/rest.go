package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the control-plane root.
const DefaultBaseURL = "https://discord.com/api/v9"

// Config carries the control-plane endpoint and credentials.
type Config struct {
	BaseURL string
	Token   string
}

// Client is the asynchronous REST shim. Every call runs on its own
// goroutine and delivers its completion callback through post, which is
// expected to funnel onto the owner context; if post rejects the task
// (client already stopped) the completion is dropped silently.
type Client struct {
	logger *zap.Logger
	base   string
	token  string
	http   *http.Client
	post   func(fn func()) bool
}

func New(logger *zap.Logger, cfg Config, post func(fn func()) bool) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		logger: logger,
		base:   base,
		token:  cfg.Token,
		http:   &http.Client{Timeout: 30 * time.Second},
		post:   post,
	}
}

// APIError is any non-2xx, non-429 control-plane response.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (code %d): %s", e.Status, e.Code, e.Message)
}

// RateLimitError is an HTTP 429 with the server-provided retry delay.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// do performs one synchronous request. out may be nil for calls with no
// interesting response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("couldn't encode request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("couldn't build request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("couldn't perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("couldn't read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		var rl struct {
			RetryAfter float64 `json:"retry_after"`
		}
		_ = json.Unmarshal(data, &rl)
		return &RateLimitError{RetryAfter: time.Duration(rl.RetryAfter * float64(time.Second))}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("couldn't decode response body: %w", err)
		}
	}
	return nil
}

// deliver posts the completion onto the owner context.
func (c *Client) deliver(fn func()) {
	if fn == nil {
		return
	}
	if !c.post(fn) {
		c.logger.Debug("Dropping REST completion, owner context is gone.")
	}
}
