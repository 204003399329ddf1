// Package searchconsole queries the search-analytics API with per-project
// OAuth tokens.
package searchconsole

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/webleadsnow/linkboard/internal/metrics"
	"github.com/webleadsnow/linkboard/internal/seo"
)

const defaultBaseURL = "https://www.googleapis.com"

// dataLagDays accounts for upstream reporting latency: windows always end
// three days before today.
const dataLagDays = 3

// TokenSource yields a valid access token for a project.
type TokenSource interface {
	GetValidToken(ctx context.Context, projectID string) (string, error)
}

// Config carries client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client issues search-analytics queries.
type Client struct {
	baseURL string
	tokens  TokenSource
	clock   seo.Clock
	http    *http.Client
}

// New constructs a Client.
func New(cfg Config, tokens TokenSource, clock seo.Clock) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		clock:   clock,
		http:    &http.Client{Timeout: timeout},
	}
}

type queryRequest struct {
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Dimensions []string `json:"dimensions"`
	RowLimit   int      `json:"rowLimit"`
	OrderBy    []struct {
		FieldName string `json:"fieldName"`
		SortOrder string `json:"sortOrder"`
	} `json:"orderBy,omitempty"`
}

type queryRow struct {
	Keys        []string `json:"keys"`
	Clicks      float64  `json:"clicks"`
	Impressions float64  `json:"impressions"`
	CTR         float64  `json:"ctr"`
	Position    float64  `json:"position"`
}

type queryResponse struct {
	Rows  []queryRow `json:"rows"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) query(ctx context.Context, projectID, siteURL string, body queryRequest) ([]queryRow, error) {
	token, err := c.tokens.GetValidToken(ctx, projectID)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode analytics query: %w", err)
	}
	endpoint := fmt.Sprintf("%s/webmasters/v3/sites/%s/searchAnalytics/query",
		c.baseURL, url.PathEscape(siteURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build analytics request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstream("searchconsole", "search_analytics", "error", time.Since(start))
		return nil, fmt.Errorf("analytics query: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		metrics.ObserveUpstream("searchconsole", "search_analytics", "error", time.Since(start))
		return nil, fmt.Errorf("read analytics response: %w", err)
	}
	var parsed queryResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		metrics.ObserveUpstream("searchconsole", "search_analytics", "error", time.Since(start))
		return nil, fmt.Errorf("decode analytics response: %w", err)
	}
	if parsed.Error != nil {
		metrics.ObserveUpstream("searchconsole", "search_analytics", "error", time.Since(start))
		return nil, fmt.Errorf("analytics query failed: %s (%d)", parsed.Error.Message, parsed.Error.Code)
	}
	metrics.ObserveUpstream("searchconsole", "search_analytics", "ok", time.Since(start))
	return parsed.Rows, nil
}

type siteEntry struct {
	SiteURL         string `json:"siteUrl"`
	PermissionLevel string `json:"permissionLevel"`
}

// Sites lists the properties the connected account can read.
func (c *Client) Sites(ctx context.Context, projectID string) ([]string, error) {
	token, err := c.tokens.GetValidToken(ctx, projectID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/webmasters/v3/sites", nil)
	if err != nil {
		return nil, fmt.Errorf("build sites request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		SiteEntry []siteEntry `json:"siteEntry"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode sites response: %w", err)
	}
	sites := make([]string, 0, len(parsed.SiteEntry))
	for _, s := range parsed.SiteEntry {
		sites = append(sites, s.SiteURL)
	}
	return sites, nil
}

// Snapshot aggregates search performance for the lag-adjusted window of
// `days` days and the equal-length window immediately preceding it. The
// per-query, per-page, current per-day, and prior per-day fetches run in
// parallel.
func (c *Client) Snapshot(ctx context.Context, projectID, siteURL string, days int) (*seo.SearchSnapshot, error) {
	if days <= 0 {
		days = 30
	}

	end := c.clock.Now().AddDate(0, 0, -dataLagDays)
	start := end.AddDate(0, 0, -days)
	prevEnd := start.AddDate(0, 0, -1)
	prevStart := prevEnd.AddDate(0, 0, -days)

	const day = "2006-01-02"

	var queryRows, pageRows, dailyRows, prevRows []queryRow
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		queryRows, err = c.query(gctx, projectID, siteURL, queryRequest{
			StartDate:  start.Format(day),
			EndDate:    end.Format(day),
			Dimensions: []string{"query"},
			RowLimit:   25,
			OrderBy: []struct {
				FieldName string `json:"fieldName"`
				SortOrder string `json:"sortOrder"`
			}{{FieldName: "clicks", SortOrder: "DESCENDING"}},
		})
		return err
	})
	g.Go(func() error {
		var err error
		pageRows, err = c.query(gctx, projectID, siteURL, queryRequest{
			StartDate:  start.Format(day),
			EndDate:    end.Format(day),
			Dimensions: []string{"page"},
			RowLimit:   20,
			OrderBy: []struct {
				FieldName string `json:"fieldName"`
				SortOrder string `json:"sortOrder"`
			}{{FieldName: "clicks", SortOrder: "DESCENDING"}},
		})
		return err
	})
	g.Go(func() error {
		var err error
		dailyRows, err = c.query(gctx, projectID, siteURL, queryRequest{
			StartDate:  start.Format(day),
			EndDate:    end.Format(day),
			Dimensions: []string{"date"},
			RowLimit:   500,
		})
		return err
	})
	g.Go(func() error {
		var err error
		prevRows, err = c.query(gctx, projectID, siteURL, queryRequest{
			StartDate:  prevStart.Format(day),
			EndDate:    prevEnd.Format(day),
			Dimensions: []string{"date"},
			RowLimit:   500,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	clicks, impressions := sumRows(dailyRows)
	prevClicks, prevImpressions := sumRows(prevRows)

	var weighted, totalImp float64
	for _, r := range queryRows {
		weighted += r.Position * r.Impressions
		totalImp += r.Impressions
	}
	avgPos := 0.0
	if totalImp > 0 {
		avgPos = weighted / totalImp
	}
	avgCTR := 0.0
	if impressions > 0 {
		avgCTR = float64(clicks) / float64(impressions)
	}

	snap := &seo.SearchSnapshot{
		Summary: seo.SearchTotals{
			Clicks:           clicks,
			Impressions:      impressions,
			PrevClicks:       prevClicks,
			PrevImpressions:  prevImpressions,
			ClicksDelta:      clicks - prevClicks,
			ImpressionsDelta: impressions - prevImpressions,
			AvgPosition:      avgPos,
			AvgCTR:           avgCTR,
		},
	}
	for _, r := range queryRows {
		snap.Queries = append(snap.Queries, seo.QueryStats{
			Query:       firstKey(r.Keys),
			Clicks:      int(r.Clicks),
			Impressions: int(r.Impressions),
			CTR:         r.CTR,
			Position:    r.Position,
		})
	}
	for _, r := range pageRows {
		snap.Pages = append(snap.Pages, seo.PageStats{
			Page:        firstKey(r.Keys),
			Clicks:      int(r.Clicks),
			Impressions: int(r.Impressions),
			CTR:         r.CTR,
			Position:    r.Position,
		})
	}
	for _, r := range dailyRows {
		snap.Daily = append(snap.Daily, seo.DailyStats{
			Date:        firstKey(r.Keys),
			Clicks:      int(r.Clicks),
			Impressions: int(r.Impressions),
		})
	}
	return snap, nil
}

func sumRows(rows []queryRow) (clicks, impressions int) {
	for _, r := range rows {
		clicks += int(r.Clicks)
		impressions += int(r.Impressions)
	}
	return clicks, impressions
}

func firstKey(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}
