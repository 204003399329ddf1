package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kvmemory "github.com/webleadsnow/linkboard/internal/kv/memory"
	"github.com/webleadsnow/linkboard/internal/metrics"
	"github.com/webleadsnow/linkboard/internal/seo"
)

func init() {
	metrics.Init()
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newManagerForTest(t *testing.T, clock seo.Clock, tokenURL string) (*Manager, *kvmemory.Store) {
	t.Helper()
	kv := kvmemory.New()
	m := New(kv, clock, &http.Client{Timeout: 5 * time.Second}, Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "https://app.example.com/v1/auth/google/callback",
	})
	if tokenURL != "" {
		m.SetTokenURL(tokenURL)
	}
	return m, kv
}

func TestGetValidToken_NotConnected(t *testing.T) {
	t.Parallel()

	m, _ := newManagerForTest(t, &fakeClock{now: time.Now()}, "")
	_, err := m.GetValidToken(context.Background(), "p1")
	require.ErrorIs(t, err, seo.ErrNotConnected)
}

func TestGetValidToken_FreshTokenNoRefresh(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new","expires_in":3600}`))
	}))
	defer srv.Close()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m, kv := newManagerForTest(t, clock, srv.URL)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "gsc:p1", seo.TokenSet{
		AccessToken:  "stored",
		RefreshToken: "refresh",
		Expiry:       clock.now.UnixMilli() + 3_600_000,
	}))

	got, err := m.GetValidToken(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "stored", got)
	require.Zero(t, calls.Load())
}

func TestGetValidToken_ExpiredPerformsSingleRefresh(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		require.Equal(t, "refresh", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new","expires_in":3600}`))
	}))
	defer srv.Close()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m, kv := newManagerForTest(t, clock, srv.URL)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "gsc:p1", seo.TokenSet{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       clock.now.UnixMilli() - 1,
	}))

	got, err := m.GetValidToken(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "new", got)
	require.Equal(t, int64(1), calls.Load())

	// Refresh must be a persisted mutation.
	var stored seo.TokenSet
	ok, err := kv.Get(ctx, "gsc:p1", &stored)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "new", stored.AccessToken)
	require.Equal(t, clock.now.UnixMilli()+3_600_000, stored.Expiry)
}

func TestGetValidToken_RefreshFailureIsHard(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m, kv := newManagerForTest(t, clock, srv.URL)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "gsc:p1", seo.TokenSet{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       clock.now.UnixMilli() - 1,
	}))

	_, err := m.GetValidToken(ctx, "p1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid_grant")
}

func TestGetValidToken_MarginTriggersRefresh(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new","expires_in":3600}`))
	}))
	defer srv.Close()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m, kv := newManagerForTest(t, clock, srv.URL)
	ctx := context.Background()

	// Expires in 30s: inside the 60s margin, must refresh.
	require.NoError(t, kv.Set(ctx, "gsc:p1", seo.TokenSet{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       clock.now.UnixMilli() + 30_000,
	}))

	got, err := m.GetValidToken(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "new", got)
}

func TestGetValidToken_RefreshOutcomesAreCounted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("refresh_token") == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new","expires_in":3600}`))
	}))
	defer srv.Close()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m, kv := newManagerForTest(t, clock, srv.URL)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "gsc:p1", seo.TokenSet{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       clock.now.UnixMilli() - 1,
	}))
	require.NoError(t, kv.Set(ctx, "gsc:p2", seo.TokenSet{
		AccessToken:  "stale",
		RefreshToken: "bad",
		Expiry:       clock.now.UnixMilli() - 1,
	}))

	_, err := m.GetValidToken(ctx, "p1")
	require.NoError(t, err)
	_, err = m.GetValidToken(ctx, "p2")
	require.Error(t, err)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), `linkboard_token_refreshes_total{outcome="ok"}`)
	require.Contains(t, rec.Body.String(), `linkboard_token_refreshes_total{outcome="error"}`)
}

func TestDisconnect_RemovesTokenSet(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	m, kv := newManagerForTest(t, clock, "")
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "gsc:p1", seo.TokenSet{AccessToken: "a"}))
	require.NoError(t, m.Disconnect(ctx, "p1"))

	_, err := m.Load(ctx, "p1")
	require.ErrorIs(t, err, seo.ErrNotConnected)
}
