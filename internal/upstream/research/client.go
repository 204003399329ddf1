// Package research asks the generative research service to evaluate a
// backlink opportunity against a fixed four-pillar rubric.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/webleadsnow/linkboard/internal/metrics"
	"github.com/webleadsnow/linkboard/internal/seo"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	defaultModel   = "claude-sonnet-4-5"
	maxTokens      = 4000
)

// Config carries client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls the research service's messages endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   model,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type tool struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
	Tools     []tool    `json:"tools,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Evaluate researches whether sourceURL is worth getting a link from for
// targetURL. The first attempt enables the live web-search tool; if the
// model stops after tool use without producing text, one retry runs without
// tools. The parsed verdict is re-checked against the toxicity rule rather
// than trusted.
func (c *Client) Evaluate(ctx context.Context, sourceURL, targetURL string) (seo.Evaluation, error) {
	prompt := buildPrompt(sourceURL, targetURL)

	text, err := c.complete(ctx, prompt, true)
	if err != nil {
		return seo.Evaluation{}, err
	}
	if strings.TrimSpace(text) == "" {
		c.logger.Info("no text block after tool use, retrying without tools",
			zap.String("source", sourceURL))
		text, err = c.complete(ctx, prompt, false)
		if err != nil {
			return seo.Evaluation{}, err
		}
		if strings.TrimSpace(text) == "" {
			return seo.Evaluation{}, fmt.Errorf("research service returned no text")
		}
	}

	eval, err := parseEvaluation(text)
	if err != nil {
		return seo.Evaluation{}, err
	}
	enforceToxicityRule(&eval)
	return eval, nil
}

func (c *Client) complete(ctx context.Context, prompt string, withTools bool) (string, error) {
	reqBody := messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: prompt}},
	}
	if withTools {
		reqBody.Tools = []tool{{Type: "web_search_20250305", Name: "web_search"}}
	}

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encode messages request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("build messages request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstream("research", "messages", "error", time.Since(start))
		return "", fmt.Errorf("messages request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		metrics.ObserveUpstream("research", "messages", "error", time.Since(start))
		return "", fmt.Errorf("read messages response: %w", err)
	}
	var parsed messagesResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		metrics.ObserveUpstream("research", "messages", "error", time.Since(start))
		return "", fmt.Errorf("decode messages response: %w", err)
	}
	if parsed.Error != nil {
		metrics.ObserveUpstream("research", "messages", "error", time.Since(start))
		return "", fmt.Errorf("research service: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	metrics.ObserveUpstream("research", "messages", "ok", time.Since(start))

	// The verdict is the final text block, after any tool-use blocks.
	text := ""
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text = block.Text
		}
	}
	return text, nil
}

// parseEvaluation strips markdown fences and surrounding prose, then decodes
// the fixed schema. A payload that is not valid JSON is a hard failure.
func parseEvaluation(text string) (seo.Evaluation, error) {
	cleaned := strings.ReplaceAll(text, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	open := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if open < 0 || end <= open {
		return seo.Evaluation{}, fmt.Errorf("no JSON object in research response")
	}

	var eval seo.Evaluation
	if err := json.Unmarshal([]byte(cleaned[open:end+1]), &eval); err != nil {
		return seo.Evaluation{}, fmt.Errorf("parse research response: %w", err)
	}
	return eval, nil
}

// enforceToxicityRule re-applies the invariant the prompt asks for: a TOXIC
// flag forces the composite to 0 and the recommendation to Avoid.
func enforceToxicityRule(eval *seo.Evaluation) {
	if strings.EqualFold(eval.ToxicityRisk.Flag, "TOXIC") {
		eval.Final.CompositeLV = 0.0
		eval.Final.Recommendation = "Avoid"
	}
}
