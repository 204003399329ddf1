package dataforseo

import (
	"context"
	"fmt"
	"net/http"
)

// SummaryResult is the raw backlink profile summary for one target.
// Missing numeric fields stay 0.
type SummaryResult struct {
	Target                   string `json:"target"`
	Rank                     int    `json:"rank"`
	Backlinks                int    `json:"backlinks"`
	ReferringDomains         int    `json:"referring_domains"`
	ReferringDomainsNofollow int    `json:"referring_domains_nofollow"`
	ReferringIPs             int    `json:"referring_ips"`
	BrokenBacklinks          int    `json:"broken_backlinks"`
}

// BacklinkItem is one inbound link row from the backlinks list endpoint.
type BacklinkItem struct {
	URLFrom        string `json:"url_from"`
	DomainFrom     string `json:"domain_from"`
	URLTo          string `json:"url_to"`
	Anchor         string `json:"anchor"`
	DomainFromRank int    `json:"domain_from_rank"`
	Dofollow       bool   `json:"dofollow"`
	FirstSeen      string `json:"first_seen"`
	LastSeen       string `json:"last_seen"`
	Broken         bool   `json:"broken"`
	SpamScore      int    `json:"backlinks_spam_score"`
}

// AnchorItem is one anchor text row.
type AnchorItem struct {
	Anchor    string `json:"anchor"`
	Backlinks int    `json:"backlinks"`
	Rank      int    `json:"rank"`
}

// ReferringDomainItem is one linking domain row.
type ReferringDomainItem struct {
	Domain    string `json:"domain"`
	Rank      int    `json:"rank"`
	Backlinks int    `json:"backlinks"`
}

// IntersectionItem is one row of a domain-intersection lookup.
type IntersectionItem struct {
	Domain    string `json:"domain"`
	Rank      int    `json:"rank"`
	Backlinks int    `json:"backlinks"`
}

type itemsResult[T any] struct {
	Items []T `json:"items"`
}

type targetPayload struct {
	Target            string   `json:"target"`
	IncludeSubdomains bool     `json:"include_subdomains"`
	Limit             int      `json:"limit,omitempty"`
	OrderBy           []string `json:"order_by,omitempty"`
}

// Summary fetches the backlink profile summary for target.
func (c *Client) Summary(ctx context.Context, target string) (SummaryResult, error) {
	t, err := c.call(ctx, http.MethodPost, "/v3/backlinks/summary/live", "backlinks_summary",
		targetPayload{Target: target, IncludeSubdomains: true})
	if err != nil {
		return SummaryResult{}, err
	}
	return firstResult[SummaryResult](t)
}

// Backlinks fetches up to limit inbound links for target, highest authority
// first.
func (c *Client) Backlinks(ctx context.Context, target string, limit int) ([]BacklinkItem, error) {
	t, err := c.call(ctx, http.MethodPost, "/v3/backlinks/backlinks/live", "backlinks_list",
		targetPayload{
			Target:            target,
			IncludeSubdomains: true,
			Limit:             limit,
			OrderBy:           []string{"rank,desc"},
		})
	if err != nil {
		return nil, err
	}
	res, err := firstResult[itemsResult[BacklinkItem]](t)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// Anchors fetches the most common anchor texts pointing at target.
func (c *Client) Anchors(ctx context.Context, target string, limit int) ([]AnchorItem, error) {
	t, err := c.call(ctx, http.MethodPost, "/v3/backlinks/anchors/live", "backlinks_anchors",
		targetPayload{
			Target:            target,
			IncludeSubdomains: true,
			Limit:             limit,
			OrderBy:           []string{"backlinks,desc"},
		})
	if err != nil {
		return nil, err
	}
	res, err := firstResult[itemsResult[AnchorItem]](t)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// ReferringDomains fetches the top linking domains for target.
func (c *Client) ReferringDomains(ctx context.Context, target string, limit int) ([]ReferringDomainItem, error) {
	t, err := c.call(ctx, http.MethodPost, "/v3/backlinks/referring_domains/live", "backlinks_referring_domains",
		targetPayload{
			Target:            target,
			IncludeSubdomains: true,
			Limit:             limit,
			OrderBy:           []string{"rank,desc"},
		})
	if err != nil {
		return nil, err
	}
	res, err := firstResult[itemsResult[ReferringDomainItem]](t)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

type intersectionPayload struct {
	Target1       string   `json:"target1"`
	Target2       string   `json:"target2"`
	Intersections bool     `json:"intersections"`
	Limit         int      `json:"limit"`
	OrderBy       []string `json:"order_by"`
}

// DomainIntersection fetches domains linking to target2. With intersect
// false, only domains NOT linking to target1 (opportunities); with intersect
// true, domains linking to both (overlap).
func (c *Client) DomainIntersection(ctx context.Context, target1, target2 string, intersect bool, limit int) ([]IntersectionItem, error) {
	t, err := c.call(ctx, http.MethodPost, "/v3/backlinks/domain_intersection/live", "backlinks_domain_intersection",
		intersectionPayload{
			Target1:       target1,
			Target2:       target2,
			Intersections: intersect,
			Limit:         limit,
			OrderBy:       []string{"rank,desc"},
		})
	if err != nil {
		return nil, err
	}
	res, err := firstResult[itemsResult[IntersectionItem]](t)
	if err != nil {
		return nil, err
	}
	if t.StatusCode != statusOK {
		return nil, fmt.Errorf("domain intersection: %s (%d)", t.StatusMessage, t.StatusCode)
	}
	return res.Items, nil
}
