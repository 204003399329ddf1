// Package pagerank queries the page-rank index for batches of domains.
package pagerank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/webleadsnow/linkboard/internal/metrics"
)

// MaxBatch is the upstream hard limit on domains per request. Callers must
// truncate before calling.
const MaxBatch = 100

const defaultBaseURL = "https://openpagerank.com"

// Rank holds the page-rank scores for one domain.
type Rank struct {
	IntegerRank int     `json:"page_rank_integer"`
	DecimalRank float64 `json:"page_rank_decimal"`
	GlobalRank  int     `json:"rank"`
}

// Config carries client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client issues batch rank lookups.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New constructs a Client.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type rankResponse struct {
	Response []struct {
		Domain          string          `json:"domain"`
		StatusCode      int             `json:"status_code"`
		PageRankInteger int             `json:"page_rank_integer"`
		PageRankDecimal json.Number     `json:"page_rank_decimal"`
		Rank            json.Number     `json:"rank"`
	} `json:"response"`
}

// Ranks queries the index once for up to MaxBatch domains. target is always
// included; duplicates are collapsed. Domains absent from the response map
// to zero ranks.
func (c *Client) Ranks(ctx context.Context, target string, domains []string) (map[string]Rank, error) {
	batch := dedupe(target, domains)
	if len(batch) > MaxBatch {
		return nil, fmt.Errorf("page rank batch of %d exceeds limit of %d", len(batch), MaxBatch)
	}

	q := url.Values{}
	for _, d := range batch {
		q.Add("domains[]", d)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1.0/getPageRank?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build page rank request: %w", err)
	}
	req.Header.Set("API-OPR", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstream("pagerank", "get_page_rank", "error", time.Since(start))
		return nil, fmt.Errorf("page rank request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.ObserveUpstream("pagerank", "get_page_rank", "error", time.Since(start))
		return nil, fmt.Errorf("read page rank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveUpstream("pagerank", "get_page_rank", "error", time.Since(start))
		return nil, fmt.Errorf("page rank returned %d", resp.StatusCode)
	}

	var parsed rankResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		metrics.ObserveUpstream("pagerank", "get_page_rank", "error", time.Since(start))
		return nil, fmt.Errorf("decode page rank response: %w", err)
	}
	metrics.ObserveUpstream("pagerank", "get_page_rank", "ok", time.Since(start))

	out := make(map[string]Rank, len(batch))
	for _, d := range batch {
		out[d] = Rank{}
	}
	for _, row := range parsed.Response {
		dec, _ := row.PageRankDecimal.Float64()
		global, _ := row.Rank.Int64()
		out[row.Domain] = Rank{
			IntegerRank: row.PageRankInteger,
			DecimalRank: dec,
			GlobalRank:  int(global),
		}
	}
	return out, nil
}

func dedupe(target string, domains []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(domains)+1)
	for _, d := range append([]string{target}, domains...) {
		if d == "" {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
