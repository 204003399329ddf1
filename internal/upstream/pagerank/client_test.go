package pagerank

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webleadsnow/linkboard/internal/metrics"
)

func init() {
	metrics.Init()
}

func TestRanks_SingleCallDedupedTargetIncluded(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "key", r.Header.Get("API-OPR"))
		domains := r.URL.Query()["domains[]"]
		require.Equal(t, []string{"target.com", "a.com", "b.com"}, domains)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":[
			{"domain":"target.com","status_code":200,"page_rank_integer":5,"page_rank_decimal":5.12,"rank":"12345"},
			{"domain":"a.com","status_code":200,"page_rank_integer":3,"page_rank_decimal":3.4,"rank":"99999"}
		]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key"})
	got, err := c.Ranks(context.Background(), "target.com", []string{"a.com", "target.com", "b.com", "a.com"})
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	require.Equal(t, 5, got["target.com"].IntegerRank)
	require.InDelta(t, 5.12, got["target.com"].DecimalRank, 0.001)
	require.Equal(t, 12345, got["target.com"].GlobalRank)

	// Absent entries default to zeros.
	require.Equal(t, Rank{}, got["b.com"])
}

func TestRanks_BatchCapEnforced(t *testing.T) {
	t.Parallel()

	c := New(Config{BaseURL: "http://unused", APIKey: "key"})
	domains := make([]string, MaxBatch+1)
	for i := range domains {
		domains[i] = fmt.Sprintf("d%d.com", i)
	}
	_, err := c.Ranks(context.Background(), "target.com", domains)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds limit")
}

func TestRanks_UpstreamErrorPropagates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key"})
	_, err := c.Ranks(context.Background(), "target.com", nil)
	require.Error(t, err)
}
