// Package email sends transactional report emails.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/webleadsnow/linkboard/internal/metrics"
)

const defaultBaseURL = "https://api.resend.com"

// Config carries client settings.
type Config struct {
	BaseURL string
	APIKey  string
	From    string
	Timeout time.Duration
}

// Client delivers HTML emails through the transactional email service.
type Client struct {
	baseURL string
	apiKey  string
	from    string
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
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		from:    cfg.From,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID    string          `json:"id"`
	Error json.RawMessage `json:"error"`
}

// Send delivers one HTML email and returns the provider's message id. An
// error payload from the provider is a hard failure.
func (c *Client) Send(ctx context.Context, to, subject, html string) (string, error) {
	raw, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return "", fmt.Errorf("encode email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstream("email", "send", "error", time.Since(start))
		return "", fmt.Errorf("email request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveUpstream("email", "send", "error", time.Since(start))
		return "", fmt.Errorf("read email response: %w", err)
	}
	var parsed sendResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		metrics.ObserveUpstream("email", "send", "error", time.Since(start))
		return "", fmt.Errorf("decode email response: %w", err)
	}
	if len(parsed.Error) > 0 && string(parsed.Error) != "null" {
		metrics.ObserveUpstream("email", "send", "error", time.Since(start))
		return "", fmt.Errorf("email provider: %s", errorMessage(parsed.Error))
	}
	metrics.ObserveUpstream("email", "send", "ok", time.Since(start))

	c.logger.Info("email sent", zap.String("to", to), zap.String("id", parsed.ID))
	return parsed.ID, nil
}

// errorMessage pulls a human message out of the provider's error field,
// which is either an object with a message or a bare string.
func errorMessage(raw json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
