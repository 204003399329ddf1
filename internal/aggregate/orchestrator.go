// Package aggregate fans requests out to the upstream adapters, joins the
// results, and derives the composite metrics the dashboard endpoints serve.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/webleadsnow/linkboard/internal/metrics"
	"github.com/webleadsnow/linkboard/internal/seo"
	"github.com/webleadsnow/linkboard/internal/upstream/dataforseo"
	"github.com/webleadsnow/linkboard/internal/upstream/pagerank"
)

const (
	backlinkListLimit = 100
	anchorLimit       = 50
	refDomainLimit    = 100
	opportunityLimit  = 20
	overlapLimit      = 50
	reportRunLimit    = 10
)

// BacklinkAPI is the slice of the SEO data client the orchestrator needs.
type BacklinkAPI interface {
	Summary(ctx context.Context, target string) (dataforseo.SummaryResult, error)
	Backlinks(ctx context.Context, target string, limit int) ([]dataforseo.BacklinkItem, error)
	Anchors(ctx context.Context, target string, limit int) ([]dataforseo.AnchorItem, error)
	ReferringDomains(ctx context.Context, target string, limit int) ([]dataforseo.ReferringDomainItem, error)
	DomainIntersection(ctx context.Context, target1, target2 string, intersect bool, limit int) ([]dataforseo.IntersectionItem, error)
	SerpLive(ctx context.Context, keyword string) ([]dataforseo.SerpItem, error)
}

// PageRankAPI resolves authority scores for a batch of domains.
type PageRankAPI interface {
	Ranks(ctx context.Context, target string, domains []string) (map[string]pagerank.Rank, error)
}

// SnapshotAPI produces search-analytics snapshots for connected projects.
type SnapshotAPI interface {
	Snapshot(ctx context.Context, projectID, siteURL string, days int) (*seo.SearchSnapshot, error)
}

// RunStore is the persistence slice the orchestrator needs.
type RunStore interface {
	GetProject(ctx context.Context, id string) (seo.Project, error)
	GetRuns(ctx context.Context, id string) ([]seo.Run, error)
	SaveRun(ctx context.Context, id string, run seo.Run) error
}

// Orchestrator merges adapter calls into the composite records the API
// serves. Read aggregations isolate per-branch failures and degrade to
// defaults; only missing inputs fail a request outright.
type Orchestrator struct {
	seoAPI BacklinkAPI
	ranks  PageRankAPI
	search SnapshotAPI
	store  RunStore
	clock  seo.Clock
	logger *zap.Logger
}

// New constructs an Orchestrator.
func New(seoAPI BacklinkAPI, ranks PageRankAPI, search SnapshotAPI, store RunStore, clock seo.Clock, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		seoAPI: seoAPI,
		ranks:  ranks,
		search: search,
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Profile is the full backlink picture for one target domain.
type Profile struct {
	Summary   seo.BacklinkSummary  `json:"summary"`
	Backlinks []seo.BacklinkRecord `json:"backlinks"`
}

// BacklinkProfile fetches summary, link list, anchors, and referring domains
// in parallel, then derives flow metrics, topic buckets, the scatter plot,
// and top anchors. A failed branch degrades to its zero value.
func (o *Orchestrator) BacklinkProfile(ctx context.Context, targetURL string) (Profile, error) {
	target := seo.CleanDomain(targetURL)
	if target == "" {
		return Profile{}, fmt.Errorf("target url: %w", seo.ErrInvalidInput)
	}

	var (
		summary    dataforseo.SummaryResult
		links      []dataforseo.BacklinkItem
		anchors    []dataforseo.AnchorItem
		refDomains []dataforseo.ReferringDomainItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(o.isolated(gctx, target, "summary", func(ctx context.Context) error {
		var err error
		summary, err = o.seoAPI.Summary(ctx, target)
		return err
	}))
	g.Go(o.isolated(gctx, target, "backlinks", func(ctx context.Context) error {
		var err error
		links, err = o.seoAPI.Backlinks(ctx, target, backlinkListLimit)
		return err
	}))
	g.Go(o.isolated(gctx, target, "anchors", func(ctx context.Context) error {
		var err error
		anchors, err = o.seoAPI.Anchors(ctx, target, anchorLimit)
		return err
	}))
	g.Go(o.isolated(gctx, target, "referring_domains", func(ctx context.Context) error {
		var err error
		refDomains, err = o.seoAPI.ReferringDomains(ctx, target, refDomainLimit)
		return err
	}))
	_ = g.Wait()

	authority := o.domainAuthority(ctx, target, refDomains)

	out := Profile{
		Summary:   deriveSummary(target, summary, links, anchors, refDomains, authority),
		Backlinks: normalizeBacklinks(links),
	}
	return out, nil
}

// isolated wraps one fan-out branch so its failure degrades to defaults
// instead of aborting the join.
func (o *Orchestrator) isolated(ctx context.Context, target, branch string, fn func(context.Context) error) func() error {
	return func() error {
		if err := fn(ctx); err != nil {
			o.logger.Warn("aggregation branch failed",
				zap.String("target", target),
				zap.String("branch", branch),
				zap.Error(err))
		}
		return nil
	}
}

// domainAuthority resolves page-rank scores for the referring domains,
// truncated to the provider's batch limit. Domains are www-stripped before
// batching so the returned map is keyed the same way buildScatter looks
// them up. Failure degrades to an empty map.
func (o *Orchestrator) domainAuthority(ctx context.Context, target string, refDomains []dataforseo.ReferringDomainItem) map[string]pagerank.Rank {
	domains := make([]string, 0, len(refDomains))
	for _, rd := range refDomains {
		if len(domains) == pagerank.MaxBatch-1 {
			break
		}
		domains = append(domains, seo.StripWWW(rd.Domain))
	}
	ranks, err := o.ranks.Ranks(ctx, seo.StripWWW(target), domains)
	if err != nil {
		o.logger.Warn("page rank lookup failed",
			zap.String("target", target),
			zap.Error(err))
		return map[string]pagerank.Rank{}
	}
	return ranks
}

func deriveSummary(target string, raw dataforseo.SummaryResult, links []dataforseo.BacklinkItem,
	anchors []dataforseo.AnchorItem, refDomains []dataforseo.ReferringDomainItem,
	authority map[string]pagerank.Rank) seo.BacklinkSummary {

	trustFlow := seo.TrustFlow(raw.Rank)

	dofollow := 0
	for _, l := range links {
		if l.Dofollow {
			dofollow++
		}
	}

	corpus := make([]string, 0, len(anchors)+len(refDomains))
	for _, a := range anchors {
		corpus = append(corpus, a.Anchor)
	}
	for _, rd := range refDomains {
		corpus = append(corpus, rd.Domain)
	}

	return seo.BacklinkSummary{
		Target:           target,
		Backlinks:        raw.Backlinks,
		ReferringDomains: raw.ReferringDomains,
		ReferringIPs:     raw.ReferringIPs,
		BrokenBacklinks:  raw.BrokenBacklinks,
		Rank:             raw.Rank,
		TrustFlow:        trustFlow,
		CitationFlow:     seo.CitationFlow(raw.Backlinks),
		DofollowPct:      seo.DofollowPct(dofollow, len(links)),
		Topics:           seo.ClassifyTopics(corpus, trustFlow),
		Scatter:          buildScatter(refDomains, authority),
		TopAnchors:       topAnchors(anchors),
	}
}

// buildScatter places each referring domain on the authority/volume plane.
// Authority prefers the page-rank score (0-10, scaled to 0-100); domains the
// batch missed fall back to the SEO index rank.
func buildScatter(refDomains []dataforseo.ReferringDomainItem, authority map[string]pagerank.Rank) []seo.ScatterPoint {
	points := make([]seo.ScatterPoint, 0, len(refDomains))
	for _, rd := range refDomains {
		rank := seo.TrustFlow(rd.Rank)
		if pr, ok := authority[seo.StripWWW(rd.Domain)]; ok && pr.IntegerRank > 0 {
			rank = pr.IntegerRank * 10
		}
		points = append(points, seo.ScatterPoint{
			Domain:    rd.Domain,
			Rank:      rank,
			Backlinks: rd.Backlinks,
		})
	}
	return points
}

func topAnchors(anchors []dataforseo.AnchorItem) []seo.AnchorCount {
	out := make([]seo.AnchorCount, 0, len(anchors))
	for _, a := range anchors {
		text := strings.TrimSpace(a.Anchor)
		if text == "" {
			continue
		}
		out = append(out, seo.AnchorCount{Anchor: text, Count: a.Backlinks})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > anchorLimit {
		out = out[:anchorLimit]
	}
	return out
}

func normalizeBacklinks(links []dataforseo.BacklinkItem) []seo.BacklinkRecord {
	out := make([]seo.BacklinkRecord, 0, len(links))
	for _, l := range links {
		out = append(out, seo.BacklinkRecord{
			URLFrom:        l.URLFrom,
			DomainFrom:     l.DomainFrom,
			URLTo:          l.URLTo,
			Anchor:         l.Anchor,
			DomainFromRank: l.DomainFromRank,
			Dofollow:       l.Dofollow,
			FirstSeen:      l.FirstSeen,
			LastSeen:       l.LastSeen,
			Broken:         l.Broken,
		})
	}
	return out
}

// CompetitorGap compares two domains: both summaries plus the two
// intersection lookups (competitor-only domains are opportunities, shared
// domains are overlap) run in parallel.
func (o *Orchestrator) CompetitorGap(ctx context.Context, domain, competitor string) (seo.CompetitorGap, error) {
	yours := seo.CleanDomain(domain)
	theirs := seo.CleanDomain(competitor)
	if yours == "" || theirs == "" {
		return seo.CompetitorGap{}, fmt.Errorf("domain and competitor: %w", seo.ErrInvalidInput)
	}

	var (
		yourSummary  dataforseo.SummaryResult
		theirSummary dataforseo.SummaryResult
		oppItems     []dataforseo.IntersectionItem
		overlapItems []dataforseo.IntersectionItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(o.isolated(gctx, yours, "summary", func(ctx context.Context) error {
		var err error
		yourSummary, err = o.seoAPI.Summary(ctx, yours)
		return err
	}))
	g.Go(o.isolated(gctx, theirs, "summary", func(ctx context.Context) error {
		var err error
		theirSummary, err = o.seoAPI.Summary(ctx, theirs)
		return err
	}))
	g.Go(o.isolated(gctx, yours, "opportunities", func(ctx context.Context) error {
		var err error
		oppItems, err = o.seoAPI.DomainIntersection(ctx, yours, theirs, false, opportunityLimit)
		return err
	}))
	g.Go(o.isolated(gctx, yours, "overlap", func(ctx context.Context) error {
		var err error
		overlapItems, err = o.seoAPI.DomainIntersection(ctx, yours, theirs, true, overlapLimit)
		return err
	}))
	_ = g.Wait()

	return seo.CompetitorGap{
		Your:          gapSide(yours, yourSummary),
		Competitor:    gapSide(theirs, theirSummary),
		Opportunities: domainRanks(oppItems, opportunityLimit),
		Overlap:       domainRanks(overlapItems, overlapLimit),
	}, nil
}

func gapSide(domain string, raw dataforseo.SummaryResult) seo.GapSide {
	side := seo.GapSide{
		Domain:           domain,
		Backlinks:        raw.Backlinks,
		ReferringDomains: raw.ReferringDomains,
		Rank:             raw.Rank,
	}
	if raw.ReferringDomainsNofollow > 0 {
		dofollow := raw.ReferringDomains - raw.ReferringDomainsNofollow
		side.Dofollow = &dofollow
	}
	return side
}

func domainRanks(items []dataforseo.IntersectionItem, limit int) []seo.DomainRank {
	out := make([]seo.DomainRank, 0, len(items))
	for _, i := range items {
		out = append(out, seo.DomainRank{Domain: i.Domain, Rank: i.Rank, Backlinks: i.Backlinks})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank > out[j].Rank })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RunProject executes one full refresh for a project: every keyword's SERP
// position concurrently, the backlink summary, and the competitor comparison
// when one is configured. Branch failures degrade; a missing domain fails.
func (o *Orchestrator) RunProject(ctx context.Context, p seo.Project) (seo.Run, error) {
	domain := seo.CleanDomain(p.Domain)
	if domain == "" {
		metrics.ObserveProjectRun("invalid")
		return seo.Run{}, fmt.Errorf("project domain: %w", seo.ErrInvalidInput)
	}

	run := seo.Run{
		Date:     o.clock.Now(),
		Rankings: make(map[string]*int, len(p.Keywords)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, kw := range p.Keywords {
		kw := kw
		g.Go(o.isolated(gctx, domain, "serp "+kw, func(ctx context.Context) error {
			items, err := o.seoAPI.SerpLive(ctx, kw)
			check := dataforseo.NormalizeSERP(kw, domain, items)
			mu.Lock()
			run.Rankings[kw] = check.Position
			mu.Unlock()
			return err
		}))
	}

	g.Go(o.isolated(gctx, domain, "summary", func(ctx context.Context) error {
		raw, err := o.seoAPI.Summary(ctx, domain)
		if err != nil {
			return err
		}
		summary := summaryOnly(domain, raw)
		mu.Lock()
		run.Backlinks = &summary
		mu.Unlock()
		return nil
	}))

	if competitor := seo.CleanDomain(p.Competitor); competitor != "" {
		g.Go(o.isolated(gctx, competitor, "summary", func(ctx context.Context) error {
			raw, err := o.seoAPI.Summary(ctx, competitor)
			if err != nil {
				return err
			}
			summary := summaryOnly(competitor, raw)
			mu.Lock()
			run.CompetitorBacklinks = &summary
			mu.Unlock()
			return nil
		}))
		g.Go(o.isolated(gctx, domain, "opportunities", func(ctx context.Context) error {
			items, err := o.seoAPI.DomainIntersection(ctx, domain, competitor, false, opportunityLimit)
			if err != nil {
				return err
			}
			mu.Lock()
			run.Opportunities = domainRanks(items, opportunityLimit)
			mu.Unlock()
			return nil
		}))
	}

	_ = g.Wait()

	metrics.ObserveProjectRun("ok")
	return run, nil
}

// summaryOnly builds the persisted run summary directly from the raw totals,
// without the list-derived metrics a full profile carries.
func summaryOnly(target string, raw dataforseo.SummaryResult) seo.BacklinkSummary {
	return seo.BacklinkSummary{
		Target:           target,
		Backlinks:        raw.Backlinks,
		ReferringDomains: raw.ReferringDomains,
		ReferringIPs:     raw.ReferringIPs,
		BrokenBacklinks:  raw.BrokenBacklinks,
		Rank:             raw.Rank,
		TrustFlow:        seo.TrustFlow(raw.Rank),
		CitationFlow:     seo.CitationFlow(raw.Backlinks),
	}
}

// RunStored loads a project, executes a run, and prepends it to the
// project's history. Used by the run endpoint and the scheduler.
func (o *Orchestrator) RunStored(ctx context.Context, projectID string) (seo.Run, error) {
	p, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return seo.Run{}, err
	}
	run, err := o.RunProject(ctx, p)
	if err != nil {
		return seo.Run{}, err
	}
	if err := o.store.SaveRun(ctx, projectID, run); err != nil {
		metrics.ObserveProjectRun("persist_error")
		return seo.Run{}, fmt.Errorf("persist run: %w", err)
	}
	return run, nil
}

// ReportData is everything a rendered report needs.
type ReportData struct {
	Project seo.Project         `json:"project"`
	Runs    []seo.Run           `json:"runs"`
	GSC     *seo.SearchSnapshot `json:"gscData"`
}

// Report assembles the project, its latest runs, and a search-analytics
// snapshot when the project is connected. A failed snapshot degrades to nil.
func (o *Orchestrator) Report(ctx context.Context, projectID string, days int) (ReportData, error) {
	p, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return ReportData{}, err
	}
	runs, err := o.store.GetRuns(ctx, projectID)
	if err != nil {
		return ReportData{}, err
	}
	if len(runs) > reportRunLimit {
		runs = runs[:reportRunLimit]
	}

	data := ReportData{Project: p, Runs: runs}
	if p.GSCSiteURL != "" {
		snapshot, err := o.search.Snapshot(ctx, projectID, p.GSCSiteURL, days)
		if err != nil {
			o.logger.Warn("search snapshot failed",
				zap.String("project_id", projectID),
				zap.Error(err))
		} else {
			data.GSC = snapshot
		}
	}
	return data, nil
}
