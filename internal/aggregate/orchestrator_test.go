package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/webleadsnow/linkboard/internal/kv/memory"
	"github.com/webleadsnow/linkboard/internal/metrics"
	"github.com/webleadsnow/linkboard/internal/seo"
	"github.com/webleadsnow/linkboard/internal/store"
	"github.com/webleadsnow/linkboard/internal/upstream/dataforseo"
	"github.com/webleadsnow/linkboard/internal/upstream/pagerank"
)

func init() {
	metrics.Init()
}

type fakeSEO struct {
	summaries     map[string]dataforseo.SummaryResult
	summaryErr    error
	links         []dataforseo.BacklinkItem
	linksErr      error
	anchors       []dataforseo.AnchorItem
	refDomains    []dataforseo.ReferringDomainItem
	intersections map[bool][]dataforseo.IntersectionItem
	serp          map[string][]dataforseo.SerpItem
	serpErr       map[string]error
}

func (f *fakeSEO) Summary(_ context.Context, target string) (dataforseo.SummaryResult, error) {
	if f.summaryErr != nil {
		return dataforseo.SummaryResult{}, f.summaryErr
	}
	return f.summaries[target], nil
}

func (f *fakeSEO) Backlinks(context.Context, string, int) ([]dataforseo.BacklinkItem, error) {
	return f.links, f.linksErr
}

func (f *fakeSEO) Anchors(context.Context, string, int) ([]dataforseo.AnchorItem, error) {
	return f.anchors, nil
}

func (f *fakeSEO) ReferringDomains(context.Context, string, int) ([]dataforseo.ReferringDomainItem, error) {
	return f.refDomains, nil
}

func (f *fakeSEO) DomainIntersection(_ context.Context, _, _ string, intersect bool, _ int) ([]dataforseo.IntersectionItem, error) {
	return f.intersections[intersect], nil
}

func (f *fakeSEO) SerpLive(_ context.Context, keyword string) ([]dataforseo.SerpItem, error) {
	if err := f.serpErr[keyword]; err != nil {
		return nil, err
	}
	return f.serp[keyword], nil
}

type fakePageRank struct {
	ranks map[string]pagerank.Rank
	batch []string
	err   error
}

func (f *fakePageRank) Ranks(_ context.Context, _ string, domains []string) (map[string]pagerank.Rank, error) {
	f.batch = domains
	return f.ranks, f.err
}

type fakeSearch struct {
	snapshot *seo.SearchSnapshot
	err      error
	calls    int
}

func (f *fakeSearch) Snapshot(context.Context, string, string, int) (*seo.SearchSnapshot, error) {
	f.calls++
	return f.snapshot, f.err
}

type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time { return f.now }

type seqIDGen struct{ n int }

func (g *seqIDGen) NewID() (string, error) {
	g.n++
	return string(rune('a' + g.n - 1)), nil
}

func newStore(t *testing.T) *store.ProjectStore {
	t.Helper()
	return store.New(memory.New(), &seqIDGen{})
}

func newOrchestrator(api *fakeSEO, pr *fakePageRank, search *fakeSearch, st *store.ProjectStore) *Orchestrator {
	if pr == nil {
		pr = &fakePageRank{ranks: map[string]pagerank.Rank{}}
	}
	return New(api, pr, search, st, fixedClock{now: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)}, zap.NewNop())
}

func TestBacklinkProfile_DerivesMetrics(t *testing.T) {
	t.Parallel()

	api := &fakeSEO{
		summaries: map[string]dataforseo.SummaryResult{
			"example.com": {Backlinks: 999, ReferringDomains: 40, ReferringIPs: 35, Rank: 72},
		},
		links: []dataforseo.BacklinkItem{
			{URLFrom: "https://a.com/post", DomainFrom: "a.com", Anchor: "best loan rates", Dofollow: true},
			{URLFrom: "https://b.com/post", DomainFrom: "b.com", Anchor: "mortgage help", Dofollow: true},
			{URLFrom: "https://c.com/post", DomainFrom: "c.com", Anchor: "click here", Dofollow: false},
		},
		anchors: []dataforseo.AnchorItem{
			{Anchor: "best loan rates", Backlinks: 12},
			{Anchor: "mortgage help", Backlinks: 7},
		},
		refDomains: []dataforseo.ReferringDomainItem{
			{Domain: "a.com", Rank: 55, Backlinks: 9},
			{Domain: "b.com", Rank: 30, Backlinks: 4},
		},
	}
	pr := &fakePageRank{ranks: map[string]pagerank.Rank{
		"a.com": {IntegerRank: 6},
	}}

	o := newOrchestrator(api, pr, nil, newStore(t))
	profile, err := o.BacklinkProfile(context.Background(), "https://example.com/some/page")
	require.NoError(t, err)

	s := profile.Summary
	require.Equal(t, "example.com", s.Target)
	require.Equal(t, 999, s.Backlinks)
	require.Equal(t, 72, s.TrustFlow)
	require.Equal(t, 60, s.CitationFlow)
	require.Equal(t, 67, s.DofollowPct)

	require.NotEmpty(t, s.Topics)
	require.Equal(t, "Business / Finance", s.Topics[0].Topic)

	require.Len(t, s.Scatter, 2)
	require.Equal(t, 60, s.Scatter[0].Rank, "page rank 6 scales to 60")
	require.Equal(t, 30, s.Scatter[1].Rank, "fallback to index rank")

	require.Len(t, s.TopAnchors, 2)
	require.Equal(t, "best loan rates", s.TopAnchors[0].Anchor)

	require.Len(t, profile.Backlinks, 3)
	require.Equal(t, "a.com", profile.Backlinks[0].DomainFrom)
}

func TestBacklinkProfile_WWWReferrerGetsPageRank(t *testing.T) {
	t.Parallel()

	api := &fakeSEO{
		summaries: map[string]dataforseo.SummaryResult{
			"example.com": {Backlinks: 100, Rank: 40},
		},
		refDomains: []dataforseo.ReferringDomainItem{
			{Domain: "www.linker.com", Rank: 25, Backlinks: 8},
		},
	}
	pr := &fakePageRank{ranks: map[string]pagerank.Rank{
		"linker.com": {IntegerRank: 7},
	}}

	o := newOrchestrator(api, pr, nil, newStore(t))
	profile, err := o.BacklinkProfile(context.Background(), "example.com")
	require.NoError(t, err)

	// The batch and the scatter lookup must use the same stripped form.
	require.Equal(t, []string{"linker.com"}, pr.batch)
	require.Len(t, profile.Summary.Scatter, 1)
	require.Equal(t, 70, profile.Summary.Scatter[0].Rank, "page rank 7 scales to 70, no index fallback")
}

func TestBacklinkProfile_BranchFailureDegrades(t *testing.T) {
	t.Parallel()

	api := &fakeSEO{
		summaries: map[string]dataforseo.SummaryResult{
			"example.com": {Backlinks: 10, Rank: 20},
		},
		linksErr: errors.New("upstream 500"),
	}
	o := newOrchestrator(api, nil, nil, newStore(t))

	profile, err := o.BacklinkProfile(context.Background(), "example.com")
	require.NoError(t, err, "a single failed branch must not fail the request")
	require.Equal(t, 10, profile.Summary.Backlinks)
	require.Empty(t, profile.Backlinks)
	require.Zero(t, profile.Summary.DofollowPct)
}

func TestBacklinkProfile_MissingTargetFails(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(&fakeSEO{}, nil, nil, newStore(t))
	_, err := o.BacklinkProfile(context.Background(), "")
	require.ErrorIs(t, err, seo.ErrInvalidInput)
}

func TestCompetitorGap_MergesBothSides(t *testing.T) {
	t.Parallel()

	api := &fakeSEO{
		summaries: map[string]dataforseo.SummaryResult{
			"me.com":   {Backlinks: 100, ReferringDomains: 40, ReferringDomainsNofollow: 10, Rank: 50},
			"them.com": {Backlinks: 900, ReferringDomains: 300, Rank: 80},
		},
		intersections: map[bool][]dataforseo.IntersectionItem{
			false: {
				{Domain: "low.com", Rank: 10},
				{Domain: "high.com", Rank: 90},
			},
			true: {
				{Domain: "shared.com", Rank: 45},
			},
		},
	}
	o := newOrchestrator(api, nil, nil, newStore(t))

	gap, err := o.CompetitorGap(context.Background(), "https://me.com", "them.com")
	require.NoError(t, err)

	require.Equal(t, "me.com", gap.Your.Domain)
	require.NotNil(t, gap.Your.Dofollow)
	require.Equal(t, 30, *gap.Your.Dofollow)
	require.Nil(t, gap.Competitor.Dofollow, "nil when nofollow count is absent")

	require.Len(t, gap.Opportunities, 2)
	require.Equal(t, "high.com", gap.Opportunities[0].Domain, "sorted by rank desc")
	require.Len(t, gap.Overlap, 1)
}

func TestCompetitorGap_RequiresBothDomains(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(&fakeSEO{}, nil, nil, newStore(t))
	_, err := o.CompetitorGap(context.Background(), "me.com", "")
	require.ErrorIs(t, err, seo.ErrInvalidInput)
}

func TestRunProject_CollectsRankingsAndSummaries(t *testing.T) {
	t.Parallel()

	api := &fakeSEO{
		summaries: map[string]dataforseo.SummaryResult{
			"me.com":   {Backlinks: 100, ReferringDomains: 40, Rank: 50},
			"them.com": {Backlinks: 900, ReferringDomains: 300, Rank: 80},
		},
		intersections: map[bool][]dataforseo.IntersectionItem{
			false: {{Domain: "opp.com", Rank: 70}},
		},
		serp: map[string][]dataforseo.SerpItem{
			"plumber austin": {
				{Type: "organic", RankAbsolute: 1, Domain: "other.com"},
				{Type: "organic", RankAbsolute: 7, Domain: "www.me.com"},
			},
		},
		serpErr: map[string]error{
			"emergency plumber": errors.New("serp down"),
		},
	}
	o := newOrchestrator(api, nil, nil, newStore(t))

	run, err := o.RunProject(context.Background(), seo.Project{
		Domain:     "me.com",
		Competitor: "them.com",
		Keywords:   []string{"plumber austin", "emergency plumber"},
	})
	require.NoError(t, err)

	require.NotNil(t, run.Rankings["plumber austin"])
	require.Equal(t, 7, *run.Rankings["plumber austin"])
	require.Contains(t, run.Rankings, "emergency plumber")
	require.Nil(t, run.Rankings["emergency plumber"], "failed keyword degrades to nil")

	require.NotNil(t, run.Backlinks)
	require.Equal(t, 100, run.Backlinks.Backlinks)
	require.NotNil(t, run.CompetitorBacklinks)
	require.Equal(t, 900, run.CompetitorBacklinks.Backlinks)
	require.Len(t, run.Opportunities, 1)
	require.False(t, run.Date.IsZero())
}

func TestRunProject_NoCompetitorSkipsComparison(t *testing.T) {
	t.Parallel()

	api := &fakeSEO{
		summaries: map[string]dataforseo.SummaryResult{"me.com": {Backlinks: 5}},
	}
	o := newOrchestrator(api, nil, nil, newStore(t))

	run, err := o.RunProject(context.Background(), seo.Project{Domain: "me.com"})
	require.NoError(t, err)
	require.Nil(t, run.CompetitorBacklinks)
	require.Empty(t, run.Opportunities)
}

func TestRunProject_MissingDomainFails(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(&fakeSEO{}, nil, nil, newStore(t))
	_, err := o.RunProject(context.Background(), seo.Project{Keywords: []string{"kw"}})
	require.ErrorIs(t, err, seo.ErrInvalidInput)
}

func TestRunStored_PersistsRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newStore(t)
	p, err := st.SaveProject(ctx, seo.Project{Name: "Acme", Domain: "me.com"})
	require.NoError(t, err)

	api := &fakeSEO{
		summaries: map[string]dataforseo.SummaryResult{"me.com": {Backlinks: 5}},
	}
	o := newOrchestrator(api, nil, nil, st)

	_, err = o.RunStored(ctx, p.ID)
	require.NoError(t, err)

	runs, err := st.GetRuns(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 5, runs[0].Backlinks.Backlinks)
}

func TestRunStored_UnknownProject(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(&fakeSEO{}, nil, nil, newStore(t))
	_, err := o.RunStored(context.Background(), "nope")
	require.ErrorIs(t, err, seo.ErrNotFound)
}

func TestReport_IncludesSnapshotWhenConnected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newStore(t)
	p, err := st.SaveProject(ctx, seo.Project{Name: "Acme", Domain: "me.com", GSCSiteURL: "sc-domain:me.com"})
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		require.NoError(t, st.SaveRun(ctx, p.ID, seo.Run{Date: time.Now().Add(time.Duration(i) * time.Hour)}))
	}

	search := &fakeSearch{snapshot: &seo.SearchSnapshot{Summary: seo.SearchTotals{Clicks: 42}}}
	o := newOrchestrator(&fakeSEO{}, nil, search, st)

	data, err := o.Report(ctx, p.ID, 30)
	require.NoError(t, err)
	require.Len(t, data.Runs, 10, "report carries at most the ten latest runs")
	require.NotNil(t, data.GSC)
	require.Equal(t, 42, data.GSC.Summary.Clicks)
}

func TestReport_SnapshotFailureDegradesToNil(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newStore(t)
	p, err := st.SaveProject(ctx, seo.Project{Name: "Acme", Domain: "me.com", GSCSiteURL: "sc-domain:me.com"})
	require.NoError(t, err)

	search := &fakeSearch{err: errors.New("quota exceeded")}
	o := newOrchestrator(&fakeSEO{}, nil, search, st)

	data, err := o.Report(ctx, p.ID, 30)
	require.NoError(t, err)
	require.Nil(t, data.GSC)
}

func TestReport_NotConnectedSkipsSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newStore(t)
	p, err := st.SaveProject(ctx, seo.Project{Name: "Acme", Domain: "me.com"})
	require.NoError(t, err)

	search := &fakeSearch{}
	o := newOrchestrator(&fakeSEO{}, nil, search, st)

	_, err = o.Report(ctx, p.ID, 30)
	require.NoError(t, err)
	require.Zero(t, search.calls)
}
