package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/webleadsnow/linkboard/internal/metrics"
)

func init() {
	metrics.Init()
}

func TestSend_DeliversAndReturnsID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/emails", r.URL.Path)
		require.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))

		var req struct {
			From    string   `json:"from"`
			To      []string `json:"to"`
			Subject string   `json:"subject"`
			HTML    string   `json:"html"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "Reports <reports@example.com>", req.From)
		require.Equal(t, []string{"client@example.com"}, req.To)
		require.Equal(t, "Monthly report", req.Subject)
		require.Contains(t, req.HTML, "<html>")

		_, _ = w.Write([]byte(`{"id":"msg_123"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "re_test", From: "Reports <reports@example.com>"}, zap.NewNop())
	id, err := c.Send(context.Background(), "client@example.com", "Monthly report", "<html><body>hi</body></html>")
	require.NoError(t, err)
	require.Equal(t, "msg_123", id)
}

func TestSend_ProviderErrorObject(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"name":"validation_error","message":"domain not verified"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "re_test", From: "x <x@example.com>"}, zap.NewNop())
	_, err := c.Send(context.Background(), "client@example.com", "s", "<html></html>")
	require.Error(t, err)
	require.Contains(t, err.Error(), "domain not verified")
}

func TestSend_ProviderErrorString(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "re_test", From: "x <x@example.com>"}, zap.NewNop())
	_, err := c.Send(context.Background(), "client@example.com", "s", "<html></html>")
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limited")
}
