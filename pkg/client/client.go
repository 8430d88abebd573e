// Package client is a small HTTP client for the error cache API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"grandgold-errcache/internal/errorcache"
	"grandgold-errcache/internal/model"
	"grandgold-errcache/pkg/apierror"
)

// DefaultTimeout bounds every request made by a Client.
const DefaultTimeout = 10 * time.Second

// Client talks to one error cache API server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client for baseURL. apiKey may be empty.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// Operation identifies a data-fetching call.
type Operation struct {
	Name      string         `json:"operation"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Verdict is the server's answer to a reported outcome.
type Verdict struct {
	Key     string            `json:"key"`
	Visible bool              `json:"visible"`
	Reason  errorcache.Reason `json:"reason"`
	Entry   *errorcache.Entry `json:"entry,omitempty"`
}

// RetryAdvice is the server's answer to a retry check or record.
type RetryAdvice struct {
	Key         string `json:"key"`
	ShouldRetry bool   `json:"should_retry"`
	Recorded    bool   `json:"recorded"`
	RetryCount  int    `json:"retry_count"`
	DelayMS     int64  `json:"delay_ms"`
}

// Delay returns the advised backoff.
func (a RetryAdvice) Delay() time.Duration {
	return time.Duration(a.DelayMS) * time.Millisecond
}

// Inspection is a cached entry together with its key.
type Inspection struct {
	Key   string           `json:"key"`
	Entry errorcache.Entry `json:"entry"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apierror.Error `json:"error"`
}

// Report sends one outcome. A nil message reports a success.
func (c *Client) Report(ctx context.Context, op Operation, message *string) (Verdict, error) {
	body := struct {
		Operation
		Error *string `json:"error"`
	}{op, message}

	var v Verdict
	err := c.do(ctx, http.MethodPost, "/api/v1/errors/report", body, &v)
	return v, err
}

// Dismiss marks the operation's current error as dismissed.
func (c *Client) Dismiss(ctx context.Context, op Operation) (string, error) {
	var out struct {
		Key string `json:"key"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/errors/dismiss", op, &out)
	return out.Key, err
}

// CheckRetry asks whether a retry is due.
func (c *Client) CheckRetry(ctx context.Context, op Operation) (RetryAdvice, error) {
	var a RetryAdvice
	err := c.do(ctx, http.MethodPost, "/api/v1/errors/retry/check", op, &a)
	return a, err
}

// RecordRetry records a retry if one is due.
func (c *Client) RecordRetry(ctx context.Context, op Operation) (RetryAdvice, error) {
	var a RetryAdvice
	err := c.do(ctx, http.MethodPost, "/api/v1/errors/retry", op, &a)
	return a, err
}

// Inspect returns the cached entry for op.
func (c *Client) Inspect(ctx context.Context, op Operation) (Inspection, error) {
	var in Inspection
	err := c.do(ctx, http.MethodPost, "/api/v1/errors/inspect", op, &in)
	return in, err
}

// Clear deletes the cached entry for op.
func (c *Client) Clear(ctx context.Context, op Operation) (string, error) {
	var out struct {
		Key string `json:"key"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/errors/clear", op, &out)
	return out.Key, err
}

// ClearAll empties the error cache.
func (c *Client) ClearAll(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/errors", nil, nil)
}

// Log returns recent decisions, optionally for one key.
func (c *Client) Log(ctx context.Context, key string, limit int) ([]model.Decision, error) {
	q := url.Values{}
	if key != "" {
		q.Set("key", key)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	path := "/api/v1/errors/log"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Decisions []model.Decision `json:"decisions"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Decisions, err
}

// Stats returns the admin statistics document.
func (c *Client) Stats(ctx context.Context) (map[string]interface{}, error) {
	var stats map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/api/v1/admin/stats", nil, &stats)
	return stats, err
}

// do performs one request and decodes the response envelope into out.
// API failures are returned as *apierror.Error.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response (HTTP %d): %w", resp.StatusCode, err)
	}

	if !env.Success {
		if env.Error == nil {
			return fmt.Errorf("request failed with HTTP %d", resp.StatusCode)
		}
		env.Error.StatusCode = resp.StatusCode
		return env.Error
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
