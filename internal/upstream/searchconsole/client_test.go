package searchconsole

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webleadsnow/linkboard/internal/metrics"
	"github.com/webleadsnow/linkboard/internal/seo"
)

func init() {
	metrics.Init()
}

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) GetValidToken(context.Context, string) (string, error) {
	return s.token, s.err
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func TestSnapshot_WindowsAndAggregation(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	var (
		mu         sync.Mutex
		gotWindows []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req struct {
			StartDate  string   `json:"startDate"`
			EndDate    string   `json:"endDate"`
			Dimensions []string `json:"dimensions"`
			RowLimit   int      `json:"rowLimit"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		gotWindows = append(gotWindows, req.StartDate+".."+req.EndDate)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case req.Dimensions[0] == "query":
			// Weighted position: (2*100 + 10*300)/400 = 8.0
			_, _ = w.Write([]byte(`{"rows":[
				{"keys":["kw one"],"clicks":40,"impressions":100,"ctr":0.4,"position":2},
				{"keys":["kw two"],"clicks":10,"impressions":300,"ctr":0.03,"position":10}
			]}`))
		case req.Dimensions[0] == "page":
			require.Equal(t, 20, req.RowLimit)
			_, _ = w.Write([]byte(`{"rows":[
				{"keys":["https://example.com/services"],"clicks":25,"impressions":90,"ctr":0.28,"position":3.1}
			]}`))
		case req.StartDate >= "2026-07-27":
			_, _ = w.Write([]byte(`{"rows":[
				{"keys":["2026-08-01"],"clicks":30,"impressions":200},
				{"keys":["2026-08-02"],"clicks":20,"impressions":300}
			]}`))
		default:
			_, _ = w.Write([]byte(`{"rows":[{"keys":["2026-07-01"],"clicks":10,"impressions":100}]}`))
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, staticTokens{token: "tok"}, fixedClock{now: now})
	snap, err := c.Snapshot(context.Background(), "p1", "https://example.com/", 30)
	require.NoError(t, err)

	// Four parallel queries, lag-adjusted windows.
	require.Len(t, gotWindows, 4)
	require.Contains(t, gotWindows, "2026-07-27..2026-08-26")
	require.Contains(t, gotWindows, "2026-06-26..2026-07-26")

	require.Equal(t, 50, snap.Summary.Clicks)
	require.Equal(t, 500, snap.Summary.Impressions)
	require.Equal(t, 10, snap.Summary.PrevClicks)
	require.Equal(t, 40, snap.Summary.ClicksDelta)
	require.InDelta(t, 8.0, snap.Summary.AvgPosition, 0.001)
	require.InDelta(t, 0.1, snap.Summary.AvgCTR, 0.001)
	require.Len(t, snap.Queries, 2)
	require.Equal(t, "kw one", snap.Queries[0].Query)
	require.Len(t, snap.Pages, 1)
	require.Equal(t, "https://example.com/services", snap.Pages[0].Page)
	require.Equal(t, 25, snap.Pages[0].Clicks)
	require.InDelta(t, 3.1, snap.Pages[0].Position, 0.001)
}

func TestSnapshot_ZeroImpressionsZeroPosition(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rows":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, staticTokens{token: "tok"}, fixedClock{now: time.Now()})
	snap, err := c.Snapshot(context.Background(), "p1", "https://example.com/", 7)
	require.NoError(t, err)
	require.Zero(t, snap.Summary.AvgPosition)
	require.Zero(t, snap.Summary.AvgCTR)
}

func TestSnapshot_TokenFailurePropagates(t *testing.T) {
	t.Parallel()

	c := New(Config{BaseURL: "http://unused"}, staticTokens{err: seo.ErrNotConnected}, fixedClock{now: time.Now()})
	_, err := c.Snapshot(context.Background(), "p1", "https://example.com/", 30)
	require.ErrorIs(t, err, seo.ErrNotConnected)
}

func TestQuery_UpstreamErrorPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"forbidden"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, staticTokens{token: "tok"}, fixedClock{now: time.Now()})
	_, err := c.Snapshot(context.Background(), "p1", "https://example.com/", 30)
	require.Error(t, err)
	require.Contains(t, err.Error(), "forbidden")
}

func TestSites_ListsProperties(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/webmasters/v3/sites", r.URL.Path)
		_, _ = w.Write([]byte(`{"siteEntry":[{"siteUrl":"https://a.com/"},{"siteUrl":"sc-domain:b.com"}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, staticTokens{token: "tok"}, fixedClock{now: time.Now()})
	sites, err := c.Sites(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.com/", "sc-domain:b.com"}, sites)
}
