package seo

import "time"

// Project is a tracked client site. Owned by the project store; nothing else
// mutates it.
type Project struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Domain     string   `json:"domain"`
	City       string   `json:"city,omitempty"`
	Competitor string   `json:"competitor,omitempty"`
	Keywords   []string `json:"keywords"`
	GSCSiteURL string   `json:"gscSiteUrl,omitempty"`
}

// Run is one execution of the aggregator for a project. Runs are immutable
// once written; the store keeps the most recent 50, newest first.
type Run struct {
	Date                time.Time        `json:"date"`
	Rankings            map[string]*int  `json:"rankings"`
	Backlinks           *BacklinkSummary `json:"backlinks"`
	CompetitorBacklinks *BacklinkSummary `json:"competitorBacklinks"`
	Opportunities       []DomainRank     `json:"opportunities"`
}

// BacklinkSummary is the normalized backlink profile for one domain, derived
// from upstream responses at request time.
type BacklinkSummary struct {
	Target           string         `json:"target"`
	Backlinks        int            `json:"backlinks"`
	ReferringDomains int            `json:"referring_domains"`
	ReferringIPs     int            `json:"referring_ips"`
	BrokenBacklinks  int            `json:"broken_backlinks"`
	Rank             int            `json:"rank"`
	TrustFlow        int            `json:"trust_flow"`
	CitationFlow     int            `json:"citation_flow"`
	DofollowPct      int            `json:"dofollow_pct"`
	Topics           []TopicScore   `json:"topics"`
	Scatter          []ScatterPoint `json:"scatter"`
	TopAnchors       []AnchorCount  `json:"top_anchors"`
}

// BacklinkRecord is one inbound link row.
type BacklinkRecord struct {
	URLFrom        string `json:"url_from"`
	DomainFrom     string `json:"domain_from"`
	URLTo          string `json:"url_to"`
	Anchor         string `json:"anchor"`
	DomainFromRank int    `json:"domain_from_rank"`
	Dofollow       bool   `json:"dofollow"`
	FirstSeen      string `json:"first_seen"`
	LastSeen       string `json:"last_seen"`
	Broken         bool   `json:"broken"`
}

// TopicScore is one bucket of the topical classification.
type TopicScore struct {
	Topic string `json:"topic"`
	Pct   int    `json:"pct"`
	Score int    `json:"score"`
}

// ScatterPoint places one referring domain on the rank/backlink plane.
type ScatterPoint struct {
	Domain    string `json:"domain"`
	Rank      int    `json:"rank"`
	Backlinks int    `json:"backlinks"`
}

// AnchorCount is one anchor text with its occurrence count.
type AnchorCount struct {
	Anchor string `json:"anchor"`
	Count  int    `json:"count"`
}

// DomainRank is a domain with upstream-provided authority rank, used for
// opportunity and overlap lists.
type DomainRank struct {
	Domain    string `json:"domain"`
	Rank      int    `json:"rank"`
	Backlinks int    `json:"backlinks,omitempty"`
}

// GapSide summarizes one side of a competitor-gap comparison.
type GapSide struct {
	Domain           string `json:"domain"`
	Backlinks        int    `json:"backlinks"`
	ReferringDomains int    `json:"referring_domains"`
	Rank             int    `json:"rank"`
	Dofollow         *int   `json:"dofollow"`
}

// CompetitorGap is the merged response of a gap lookup.
type CompetitorGap struct {
	Your          GapSide      `json:"your"`
	Competitor    GapSide      `json:"competitor"`
	Opportunities []DomainRank `json:"opportunities"`
	Overlap       []DomainRank `json:"overlap"`
}

// SerpEntry is one organic result row.
type SerpEntry struct {
	Position    int    `json:"position"`
	Domain      string `json:"domain"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	IsTarget    bool   `json:"isTarget"`
}

// RankCheck is the outcome of a keyword position lookup. Position is nil when
// the target domain does not appear in the organic results.
type RankCheck struct {
	Done         bool        `json:"done"`
	Keyword      string      `json:"keyword"`
	Domain       string      `json:"domain"`
	TaskID       string      `json:"taskId,omitempty"`
	StatusCode   int         `json:"statusCode,omitempty"`
	Position     *int        `json:"position"`
	MatchedItem  *SerpEntry  `json:"matchedItem"`
	Top10        []SerpEntry `json:"top10"`
	TotalOrganic int         `json:"totalOrganicResults"`
}

// TokenSet is the persisted OAuth state for one project. Expiry is epoch
// milliseconds and must always reflect the actual access token expiration.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Expiry       int64  `json:"expiry"`
	ConnectedAt  string `json:"connected_at"`
}

// SearchSnapshot is the normalized search-analytics view for one site over a
// window, with the immediately preceding equal-length window for comparison.
type SearchSnapshot struct {
	Summary SearchTotals `json:"summary"`
	Queries []QueryStats `json:"queries"`
	Pages   []PageStats  `json:"pages,omitempty"`
	Daily   []DailyStats `json:"dailyTrend,omitempty"`
}

// SearchTotals aggregates clicks/impressions over current and prior windows.
type SearchTotals struct {
	Clicks           int     `json:"clicks"`
	Impressions      int     `json:"impressions"`
	PrevClicks       int     `json:"prevClicks"`
	PrevImpressions  int     `json:"prevImpressions"`
	ClicksDelta      int     `json:"clicksDelta"`
	ImpressionsDelta int     `json:"impressionsDelta"`
	AvgPosition      float64 `json:"avgPosition"`
	AvgCTR           float64 `json:"avgCtr"`
}

// QueryStats is per-query search performance.
type QueryStats struct {
	Query       string  `json:"query"`
	Clicks      int     `json:"clicks"`
	Impressions int     `json:"impressions"`
	CTR         float64 `json:"ctr"`
	Position    float64 `json:"position"`
}

// PageStats is per-page search performance.
type PageStats struct {
	Page        string  `json:"page"`
	Clicks      int     `json:"clicks"`
	Impressions int     `json:"impressions"`
	CTR         float64 `json:"ctr"`
	Position    float64 `json:"position"`
}

// DailyStats is per-day search performance.
type DailyStats struct {
	Date        string `json:"date"`
	Clicks      int    `json:"clicks"`
	Impressions int    `json:"impressions"`
}

// Evaluation is the fixed four-pillar verdict returned by the research
// service for a source/target link pair.
type Evaluation struct {
	SourceURL        string  `json:"source_url"`
	TargetURL        string  `json:"target_url"`
	SourceAuthority  Pillar  `json:"source_authority"`
	TopicalAlignment Pillar  `json:"topical_alignment"`
	ToxicityRisk     Pillar  `json:"toxicity_risk"`
	AgenticUtility   Pillar  `json:"agentic_utility"`
	Final            Verdict `json:"final"`
}

// Pillar is one scored evaluation dimension. Toxicity uses Flag instead of
// Score.
type Pillar struct {
	Score    float64           `json:"score,omitempty"`
	Flag     string            `json:"flag,omitempty"`
	Findings map[string]string `json:"findings"`
	Summary  string            `json:"summary"`
}

// Verdict is the composite recommendation.
type Verdict struct {
	CompositeLV    float64 `json:"composite_lv"`
	Recommendation string  `json:"recommendation"`
	Reasoning      string  `json:"reasoning"`
}
