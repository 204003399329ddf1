package dataforseo

import (
	"context"
	"fmt"
	"net/http"

	"github.com/webleadsnow/linkboard/internal/seo"
)

// SERP task status codes reported while a queued lookup is in flight.
const (
	statusTaskInQueue = 40601
	statusTaskHanded  = 40602
)

type serpPayload struct {
	Keyword      string `json:"keyword"`
	LanguageCode string `json:"language_code"`
	LocationCode int    `json:"location_code"`
	Device       string `json:"device"`
	Depth        int    `json:"depth"`
}

func newSerpPayload(keyword string) serpPayload {
	return serpPayload{
		Keyword:      keyword,
		LanguageCode: "en",
		LocationCode: 2840, // United States
		Device:       "desktop",
		Depth:        100,
	}
}

// SerpItem is one raw result row from a SERP lookup.
type SerpItem struct {
	Type         string `json:"type"`
	RankAbsolute int    `json:"rank_absolute"`
	Domain       string `json:"domain"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	Description  string `json:"description"`
}

type serpResult struct {
	Items []SerpItem `json:"items"`
}

// SerpLive runs a synchronous organic lookup for keyword.
func (c *Client) SerpLive(ctx context.Context, keyword string) ([]SerpItem, error) {
	t, err := c.call(ctx, http.MethodPost, "/v3/serp/google/organic/live/regular", "serp_live",
		newSerpPayload(keyword))
	if err != nil {
		return nil, err
	}
	if t.StatusCode != statusOK {
		return nil, fmt.Errorf("serp lookup: %s (%d)", t.StatusMessage, t.StatusCode)
	}
	res, err := firstResult[serpResult](t)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// SerpTaskPost submits an asynchronous organic lookup and returns the task
// id. A rejected submission fails loudly.
func (c *Client) SerpTaskPost(ctx context.Context, keyword string) (string, error) {
	t, err := c.call(ctx, http.MethodPost, "/v3/serp/google/organic/task_post", "serp_task_post",
		newSerpPayload(keyword))
	if err != nil {
		return "", err
	}
	if t.StatusCode != statusOK && t.StatusCode != statusTaskCreated {
		return "", fmt.Errorf("serp task rejected: %s (%d)", t.StatusMessage, t.StatusCode)
	}
	if t.ID == "" {
		return "", fmt.Errorf("serp task accepted without id (%d)", t.StatusCode)
	}
	return t.ID, nil
}

// SerpTaskGet checks one queued lookup. While the task is still processing
// it returns the upstream status code wrapped in seo.ErrTaskPending.
func (c *Client) SerpTaskGet(ctx context.Context, taskID string) ([]SerpItem, int, error) {
	t, err := c.call(ctx, http.MethodGet, "/v3/serp/google/organic/task_get/regular/"+taskID, "serp_task_get", nil)
	if err != nil {
		return nil, 0, err
	}
	switch t.StatusCode {
	case statusOK:
		res, err := firstResult[serpResult](t)
		if err != nil {
			return nil, t.StatusCode, err
		}
		return res.Items, t.StatusCode, nil
	case statusTaskInQueue, statusTaskHanded:
		return nil, t.StatusCode, fmt.Errorf("task %s: %w", taskID, seo.ErrTaskPending)
	default:
		return nil, t.StatusCode, fmt.Errorf("serp task %s: %s (%d)", taskID, t.StatusMessage, t.StatusCode)
	}
}

// NormalizeSERP filters items to organic results and finds the first entry
// whose www-stripped domain exactly equals the query domain.
func NormalizeSERP(keyword, domain string, items []SerpItem) seo.RankCheck {
	target := seo.StripWWW(seo.CleanDomain(domain))

	check := seo.RankCheck{
		Done:    true,
		Keyword: keyword,
		Domain:  target,
	}
	for _, item := range items {
		if item.Type != "organic" {
			continue
		}
		check.TotalOrganic++
		entry := seo.SerpEntry{
			Position:    item.RankAbsolute,
			Domain:      item.Domain,
			Title:       item.Title,
			URL:         item.URL,
			Description: item.Description,
			IsTarget:    seo.StripWWW(item.Domain) == target,
		}
		if len(check.Top10) < 10 {
			check.Top10 = append(check.Top10, entry)
		}
		if check.Position == nil && entry.IsTarget {
			pos := item.RankAbsolute
			check.Position = &pos
			matched := entry
			check.MatchedItem = &matched
		}
	}
	return check
}
