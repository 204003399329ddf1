// Package dataforseo wraps the backlink and SERP index API. Every call posts
// a single-task JSON array and reads tasks[0].result[0] from the response.
package dataforseo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/webleadsnow/linkboard/internal/metrics"
)

const (
	defaultBaseURL = "https://api.dataforseo.com"

	// Task status codes used by the SERP task queue.
	statusOK          = 20000
	statusTaskCreated = 20100
)

// Config carries client credentials and endpoint overrides.
type Config struct {
	BaseURL  string
	Login    string
	Password string
	Timeout  time.Duration
}

// Client issues authenticated requests against the backlink/SERP index.
type Client struct {
	baseURL string
	auth    string
	http    *http.Client
	logger  *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	creds := base64.StdEncoding.EncodeToString([]byte(cfg.Login + ":" + cfg.Password))
	return &Client{
		baseURL: baseURL,
		auth:    "Basic " + creds,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type task struct {
	ID            string          `json:"id"`
	StatusCode    int             `json:"status_code"`
	StatusMessage string          `json:"status_message"`
	Result        json.RawMessage `json:"result"`
}

type envelope struct {
	StatusCode int    `json:"status_code"`
	Tasks      []task `json:"tasks"`
}

// call posts payload (wrapped in a one-element array) to path and returns
// the first task. method is GET for task_get style endpoints.
func (c *Client) call(ctx context.Context, method, path, endpoint string, payload any) (task, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal([]any{payload})
		if err != nil {
			return task{}, fmt.Errorf("encode %s payload: %w", endpoint, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return task{}, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstream("dataforseo", endpoint, "error", time.Since(start))
		return task{}, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		metrics.ObserveUpstream("dataforseo", endpoint, "error", time.Since(start))
		return task{}, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.ObserveUpstream("dataforseo", endpoint, "error", time.Since(start))
		return task{}, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	if len(env.Tasks) == 0 {
		metrics.ObserveUpstream("dataforseo", endpoint, "empty", time.Since(start))
		return task{}, fmt.Errorf("%s: empty task list (http %d)", endpoint, resp.StatusCode)
	}

	metrics.ObserveUpstream("dataforseo", endpoint, "ok", time.Since(start))
	c.logger.Debug("upstream call",
		zap.String("endpoint", endpoint),
		zap.Int("task_status", env.Tasks[0].StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return env.Tasks[0], nil
}

// firstResult decodes tasks[0].result into a slice of T and returns the
// first element. Missing results decode to the zero value.
func firstResult[T any](t task) (T, error) {
	var zero T
	if len(t.Result) == 0 || string(t.Result) == "null" {
		return zero, nil
	}
	var results []T
	if err := json.Unmarshal(t.Result, &results); err != nil {
		return zero, fmt.Errorf("decode task result: %w", err)
	}
	if len(results) == 0 {
		return zero, nil
	}
	return results[0], nil
}
