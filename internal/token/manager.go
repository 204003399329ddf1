// Package token stores and refreshes per-project OAuth2 token sets.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/webleadsnow/linkboard/internal/metrics"
	"github.com/webleadsnow/linkboard/internal/seo"
)

// refreshMargin is the safety window before expiry that still triggers a
// refresh. It also absorbs concurrent-refresh races (last write wins).
const refreshMargin = 60 * time.Second

func tokenKey(projectID string) string { return "gsc:" + projectID }

// Config carries the OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Manager persists token sets in the key-value store and refreshes access
// tokens before use.
type Manager struct {
	kv     seo.KV
	clock  seo.Clock
	client *http.Client
	oauth  *oauth2.Config
}

// New constructs a Manager. A nil httpClient falls back to a 15s-timeout
// default.
func New(kv seo.KV, clock seo.Clock, httpClient *http.Client, cfg Config) *Manager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"https://www.googleapis.com/auth/webmasters.readonly"}
	}
	return &Manager{
		kv:     kv,
		clock:  clock,
		client: httpClient,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
	}
}

// AuthCodeURL builds the consent URL. The state parameter carries the
// project id through the flow.
func (m *Manager) AuthCodeURL(projectID string) string {
	return m.oauth.AuthCodeURL(
		projectID,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for a token set and persists it for
// the project.
func (m *Manager) Exchange(ctx context.Context, projectID, code string) (seo.TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return seo.TokenSet{}, fmt.Errorf("oauth exchange: %w", err)
	}
	now := m.clock.Now()
	set := seo.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry.UnixMilli(),
		ConnectedAt:  now.UTC().Format(time.RFC3339),
	}
	if err := m.kv.Set(ctx, tokenKey(projectID), set); err != nil {
		return seo.TokenSet{}, fmt.Errorf("persist token set: %w", err)
	}
	return set, nil
}

// Load returns the stored token set, or seo.ErrNotConnected when absent.
func (m *Manager) Load(ctx context.Context, projectID string) (seo.TokenSet, error) {
	var set seo.TokenSet
	ok, err := m.kv.Get(ctx, tokenKey(projectID), &set)
	if err != nil {
		return seo.TokenSet{}, fmt.Errorf("load token set: %w", err)
	}
	if !ok {
		return seo.TokenSet{}, seo.ErrNotConnected
	}
	return set, nil
}

// Disconnect deletes the stored token set.
func (m *Manager) Disconnect(ctx context.Context, projectID string) error {
	if err := m.kv.Del(ctx, tokenKey(projectID)); err != nil {
		return fmt.Errorf("delete token set: %w", err)
	}
	return nil
}

// GetValidToken returns a usable access token for the project, refreshing
// (and persisting) first when the stored token is inside the expiry margin.
// A refresh failure propagates; stale tokens are never served.
func (m *Manager) GetValidToken(ctx context.Context, projectID string) (string, error) {
	set, err := m.Load(ctx, projectID)
	if err != nil {
		return "", err
	}

	now := m.clock.Now()
	if now.UnixMilli() <= set.Expiry-refreshMargin.Milliseconds() {
		return set.AccessToken, nil
	}

	refreshed, err := m.refresh(ctx, set.RefreshToken)
	if err != nil {
		metrics.ObserveTokenRefresh("error")
		return "", err
	}
	metrics.ObserveTokenRefresh("ok")
	set.AccessToken = refreshed.AccessToken
	set.Expiry = now.UnixMilli() + refreshed.ExpiresIn*1000
	if err := m.kv.Set(ctx, tokenKey(projectID), set); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}
	return set.AccessToken, nil
}

type refreshResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (m *Manager) refresh(ctx context.Context, refreshToken string) (refreshResponse, error) {
	form := url.Values{
		"client_id":     {m.oauth.ClientID},
		"client_secret": {m.oauth.ClientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		m.oauth.Endpoint.TokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return refreshResponse{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return refreshResponse{}, fmt.Errorf("token refresh: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return refreshResponse{}, fmt.Errorf("read refresh response: %w", err)
	}
	var parsed refreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return refreshResponse{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if parsed.Error != "" {
		return refreshResponse{}, fmt.Errorf("token refresh failed: %s", parsed.Error)
	}
	if resp.StatusCode != http.StatusOK || parsed.AccessToken == "" {
		return refreshResponse{}, fmt.Errorf("token refresh returned %d", resp.StatusCode)
	}
	return parsed, nil
}

// SetTokenURL overrides the provider token endpoint; test hook.
func (m *Manager) SetTokenURL(u string) {
	m.oauth.Endpoint.TokenURL = u
}
