package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/escalation"
	"github.com/The-Juice-Real/redgenv2/internal/fetcher"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
	"github.com/The-Juice-Real/redgenv2/internal/profile"
	"github.com/The-Juice-Real/redgenv2/internal/ratelimit"
	"github.com/The-Juice-Real/redgenv2/internal/scoring"
)

const droneNeed = "My company's CEO needs a $5000 drone inspection urgently, deadline Friday"

type fakeSource struct {
	items    map[string][]domain.RawItem
	errs     map[string]error
	onSearch func(partition string)
}

func (s *fakeSource) Search(_ context.Context, req ports.SearchRequest) (ports.SearchPage, error) {
	if s.onSearch != nil {
		s.onSearch(req.Partition)
	}
	if err := s.errs[req.Partition]; err != nil {
		return ports.SearchPage{}, err
	}
	items := s.items[req.Partition]
	if req.Limit > 0 && len(items) > req.Limit {
		items = items[:req.Limit]
	}
	return ports.SearchPage{Items: items}, nil
}

func (s *fakeSource) FetchComments(context.Context, string, ports.CommentLimits) ([]domain.RawComment, error) {
	return nil, nil
}

type staticProfiles struct {
	profile domain.ServiceProfile
}

func (s staticProfiles) Get(serviceType string) (domain.ServiceProfile, error) {
	if serviceType != s.profile.Type {
		return domain.ServiceProfile{}, domain.ErrUnknownServiceType
	}
	return s.profile, nil
}

type memoryExclusions struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newMemoryExclusions(ids ...string) *memoryExclusions {
	m := &memoryExclusions{ids: map[string]struct{}{}}
	for _, id := range ids {
		m.ids[id] = struct{}{}
	}
	return m
}

func (m *memoryExclusions) LoadAll(context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.ids))
	for id := range m.ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (m *memoryExclusions) Contains(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[id]
	return ok, nil
}

func (m *memoryExclusions) Add(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id] = struct{}{}
	return nil
}

func (m *memoryExclusions) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ids, id)
	return nil
}

type recordingRepo struct {
	upserted []domain.ScoredItem
	runs     []domain.RunRecord
}

func (r *recordingRepo) UpsertProspects(_ context.Context, _ string, items []domain.ScoredItem) error {
	r.upserted = append(r.upserted, items...)
	return nil
}

func (r *recordingRepo) SaveRun(_ context.Context, run domain.RunRecord) error {
	r.runs = append(r.runs, run)
	return nil
}

type recordingNotifier struct {
	digests []string
}

func (n *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	n.digests = append(n.digests, digest)
	return nil
}

type fixedEnricher struct {
	calls atomic.Int32
	score float64
}

func (e *fixedEnricher) Enrich(context.Context, domain.RawItem, float64) (domain.EnrichedResult, error) {
	e.calls.Add(1)
	return domain.EnrichedResult{Score: e.score, Confidence: 0.9}, nil
}

func droneProfile(t *testing.T, partitions ...string) domain.ServiceProfile {
	t.Helper()
	catalog, err := profile.Default()
	require.NoError(t, err)
	p, err := catalog.Get("drone_services")
	require.NoError(t, err)
	if len(partitions) > 0 {
		p.Partitions = partitions
	}
	return p
}

func rawItem(id, partition, body string) domain.RawItem {
	return domain.RawItem{
		ID:         id,
		Author:     "author_" + id,
		Partition:  partition,
		Body:       body,
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Engagement: domain.Engagement{Score: 4},
	}
}

func newFetcher(src ports.SourceClient) *fetcher.Fetcher {
	cfg := fetcher.DefaultConfig()
	cfg.BaseBackoff = time.Millisecond
	return fetcher.New(src, ratelimit.New(0), cfg)
}

func TestPipelineRunEndToEnd(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		items: map[string][]domain.RawItem{
			"drones": {
				rawItem("p1", "drones", droneNeed),
				rawItem("short", "drones", "need a drone pilot, thanks!!"),
				{ID: "", Partition: "drones", Body: "no identifier at all but long enough to pass"},
				rawItem("seen", "drones", droneNeed+" again"),
			},
			"roofing": {
				rawItem("p2", "roofing", "Looking for roof inspection by drone, our business needs a quote this week please"),
				rawItem("p1", "roofing", droneNeed),
			},
		},
		errs: map[string]error{"construction": domain.ErrNotFound},
	}
	repo := &recordingRepo{}
	notifier := &recordingNotifier{}
	exclusions := newMemoryExclusions("seen")

	p := NewPipeline(PipelineDeps{
		Profiles:   staticProfiles{profile: droneProfile(t, "drones", "roofing", "construction")},
		Fetcher:    newFetcher(src),
		Exclusions: exclusions,
		Repository: repo,
		Notifier:   notifier,
		Config:     PipelineConfig{Concurrency: 2, MarkQualified: true},
	})

	result, err := p.Run(context.Background(), "drone_services")
	require.NoError(t, err)

	stats := result.Stats
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 3, stats.PartitionsSearched)
	assert.Equal(t, 6, stats.TotalFetched)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 1, stats.PreFilterRejected)
	assert.Equal(t, 1, stats.PreFilterReasons[scoring.ReasonTooShort])
	assert.Equal(t, []string{"construction"}, stats.FailedPartitions)
	assert.Equal(t, 1, stats.ExcludedAsDuplicate)
	assert.False(t, stats.Cancelled)
	assert.False(t, stats.FinishedAt.Before(stats.StartedAt))

	ids := make([]string, 0, len(result.Prospects))
	total := 0
	for _, item := range result.Prospects {
		ids = append(ids, item.ID())
	}
	for _, n := range stats.TierCounts {
		total += n
	}
	assert.Equal(t, len(result.Prospects), total)
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids, "duplicates and exclusions are removed")
	assert.Equal(t, "p1", result.Prospects[0].ID())
	assert.Equal(t, domain.TierPlatinum, result.Prospects[0].Tier)

	for i := 1; i < len(result.Prospects); i++ {
		assert.GreaterOrEqual(t, result.Prospects[i-1].Composite, result.Prospects[i].Composite)
	}

	require.Len(t, repo.runs, 1)
	assert.Len(t, repo.runs[0].Fingerprint, 64)
	assert.Equal(t, stats.RunID, repo.runs[0].RunID)
	assert.NotEmpty(t, repo.upserted)
	for _, item := range repo.upserted {
		assert.True(t, item.Tier.Qualified())
	}

	require.Len(t, notifier.digests, 1)
	assert.Contains(t, notifier.digests[0], "PLATINUM")

	marked, err := exclusions.Contains(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, marked, "qualified prospects are excluded from later runs")
}

type spyScorer struct {
	inner  ItemScorer
	scored atomic.Int32
}

func (s *spyScorer) Evaluate(item domain.RawItem) scoring.Verdict { return s.inner.Evaluate(item) }

func (s *spyScorer) Score(item domain.RawItem) domain.ScoredItem {
	s.scored.Add(1)
	return s.inner.Score(item)
}

func TestPipelineShortItemNeverScored(t *testing.T) {
	t.Parallel()

	short := strings.Repeat("x", 30)
	src := &fakeSource{items: map[string][]domain.RawItem{"drones": {rawItem("tiny", "drones", short)}}}

	spy := &spyScorer{}
	p := NewPipeline(PipelineDeps{
		Profiles: staticProfiles{profile: droneProfile(t, "drones")},
		Fetcher:  newFetcher(src),
		Scorers: func(profile domain.ServiceProfile) ItemScorer {
			spy.inner = scoring.NewEngine(profile)
			return spy
		},
	})

	result, err := p.Run(context.Background(), "drone_services")
	require.NoError(t, err)
	assert.Equal(t, int32(0), spy.scored.Load())
	assert.Equal(t, 1, result.Stats.TotalFetched)
	assert.Equal(t, 1, result.Stats.PreFilterReasons[scoring.ReasonTooShort])
	assert.Empty(t, result.Prospects)
}

func TestPipelineUnknownServiceTypeIsFatal(t *testing.T) {
	t.Parallel()

	var searched atomic.Int32
	src := &fakeSource{onSearch: func(string) { searched.Add(1) }}
	p := NewPipeline(PipelineDeps{
		Profiles: staticProfiles{profile: droneProfile(t)},
		Fetcher:  newFetcher(src),
	})

	result, err := p.Run(context.Background(), "knitting")
	require.ErrorIs(t, err, domain.ErrUnknownServiceType)
	assert.NotEmpty(t, result.Stats.RunID, "statistics are returned even on failure")
	assert.Equal(t, int32(0), searched.Load(), "no work starts")
}

func TestPipelineInvalidProfileIsFatal(t *testing.T) {
	t.Parallel()

	bad := droneProfile(t)
	bad.QualificationThreshold = 150
	p := NewPipeline(PipelineDeps{
		Profiles: staticProfiles{profile: bad},
		Fetcher:  newFetcher(&fakeSource{}),
	})

	_, err := p.Run(context.Background(), "drone_services")
	assert.ErrorIs(t, err, domain.ErrInvalidProfile)
}

func TestPipelineCancellationReturnsPartialResult(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{
		items: map[string][]domain.RawItem{
			"a": {rawItem("a1", "a", droneNeed)},
			"b": {rawItem("b1", "b", droneNeed)},
		},
		onSearch: func(partition string) {
			if partition == "b" {
				cancel()
			}
		},
	}
	enricher := &fixedEnricher{score: 99}
	p := NewPipeline(PipelineDeps{
		Profiles: staticProfiles{profile: droneProfile(t, "a", "b")},
		Fetcher:  newFetcher(src),
		Gate:     escalation.NewGate(enricher, nil, escalation.DefaultConfig(), nil),
		Config:   PipelineConfig{Concurrency: 1, EnrichmentBudget: 5},
	})

	result, err := p.Run(ctx, "drone_services")
	require.NoError(t, err, "cancellation is reported, not returned")
	assert.True(t, result.Stats.Cancelled)
	require.Len(t, result.Prospects, 1)
	assert.Equal(t, "a1", result.Prospects[0].ID())
	assert.Empty(t, result.Stats.FailedPartitions)
	assert.Equal(t, int32(0), enricher.calls.Load())
}

func TestPipelineEnrichmentRespectsBudget(t *testing.T) {
	t.Parallel()

	var items []domain.RawItem
	for i := 0; i < 12; i++ {
		items = append(items, rawItem("d"+string(rune('a'+i)), "drones", droneNeed))
	}
	src := &fakeSource{items: map[string][]domain.RawItem{"drones": items}}
	enricher := &fixedEnricher{score: 40}

	p := NewPipeline(PipelineDeps{
		Profiles: staticProfiles{profile: droneProfile(t, "drones")},
		Fetcher:  newFetcher(src),
		Gate:     escalation.NewGate(enricher, nil, escalation.Config{Concurrency: 4}, nil),
		Config:   PipelineConfig{EnrichmentBudget: 3},
	})

	result, err := p.Run(context.Background(), "drone_services")
	require.NoError(t, err)
	assert.Equal(t, 12, result.Stats.EnrichmentCandidates)
	assert.Equal(t, 3, result.Stats.EnrichmentCallsUsed)
	assert.Equal(t, 9, result.Stats.EnrichmentSkipped)
	assert.Equal(t, int32(3), enricher.calls.Load())

	enriched := 0
	for _, item := range result.Prospects {
		if item.Escalation == domain.EscalationEnriched {
			enriched++
			assert.Equal(t, item.LocalScore, item.Composite, "a lower enrichment score never lowers the composite")
		}
	}
	assert.Equal(t, 3, enriched)
}

type failingRepo struct{}

func (failingRepo) UpsertProspects(context.Context, string, []domain.ScoredItem) error {
	return errors.New("disk full")
}

func (failingRepo) SaveRun(context.Context, domain.RunRecord) error {
	return errors.New("disk full")
}

func TestPipelinePersistenceFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	src := &fakeSource{items: map[string][]domain.RawItem{"drones": {rawItem("p1", "drones", droneNeed)}}}
	exclusions := newMemoryExclusions()
	p := NewPipeline(PipelineDeps{
		Profiles:   staticProfiles{profile: droneProfile(t, "drones")},
		Fetcher:    newFetcher(src),
		Repository: failingRepo{},
		Exclusions: exclusions,
		Config:     PipelineConfig{MarkQualified: true},
	})

	result, err := p.Run(context.Background(), "drone_services")
	require.NoError(t, err)
	assert.Len(t, result.Prospects, 1)

	marked, _ := exclusions.Contains(context.Background(), "p1")
	assert.False(t, marked, "items are only marked once persisted")
}

type failingExclusions struct {
	memoryExclusions
}

func (*failingExclusions) LoadAll(context.Context) (map[string]struct{}, error) {
	return nil, errors.New("connection refused")
}

func TestPipelineRunsWithoutExclusionStore(t *testing.T) {
	t.Parallel()

	src := &fakeSource{items: map[string][]domain.RawItem{"drones": {rawItem("p1", "drones", droneNeed)}}}
	exclusions := &failingExclusions{memoryExclusions: memoryExclusions{ids: map[string]struct{}{}}}
	repo := &recordingRepo{}
	p := NewPipeline(PipelineDeps{
		Profiles:   staticProfiles{profile: droneProfile(t, "drones")},
		Fetcher:    newFetcher(src),
		Exclusions: exclusions,
		Repository: repo,
		Config:     PipelineConfig{MarkQualified: true},
	})

	result, err := p.Run(context.Background(), "drone_services")
	require.NoError(t, err, "an unreadable exclusion store does not abort the run")
	assert.True(t, result.Stats.ExclusionsUnavailable)
	assert.Equal(t, 1, result.Stats.TotalFetched)
	require.Len(t, result.Prospects, 1)
	assert.Len(t, repo.upserted, 1)

	marked, _ := exclusions.Contains(context.Background(), "p1")
	assert.False(t, marked, "nothing is marked while the store is unavailable")
}

type tieredScorer map[string]domain.Tier

func (tieredScorer) Evaluate(domain.RawItem) scoring.Verdict { return scoring.Verdict{Pass: true} }

func (s tieredScorer) Score(item domain.RawItem) domain.ScoredItem {
	composite := map[domain.Tier]float64{
		domain.TierPlatinum: 95,
		domain.TierGold:     78,
		domain.TierSilver:   60,
		domain.TierRejected: 20,
	}[s[item.ID]]
	return domain.ScoredItem{Item: item, LocalScore: composite, Composite: composite, Tier: s[item.ID]}
}

func TestPipelinePersistsSilverAndBetter(t *testing.T) {
	t.Parallel()

	src := &fakeSource{items: map[string][]domain.RawItem{"drones": {
		rawItem("plat", "drones", droneNeed),
		rawItem("silver", "drones", droneNeed),
		rawItem("rejected", "drones", droneNeed),
	}}}
	repo := &recordingRepo{}
	notifier := &recordingNotifier{}
	exclusions := newMemoryExclusions()
	scorer := tieredScorer{"plat": domain.TierPlatinum, "silver": domain.TierSilver, "rejected": domain.TierRejected}

	p := NewPipeline(PipelineDeps{
		Profiles:   staticProfiles{profile: droneProfile(t, "drones")},
		Fetcher:    newFetcher(src),
		Exclusions: exclusions,
		Repository: repo,
		Notifier:   notifier,
		Scorers:    func(domain.ServiceProfile) ItemScorer { return scorer },
		Config:     PipelineConfig{MarkQualified: true},
	})

	result, err := p.Run(context.Background(), "drone_services")
	require.NoError(t, err)
	require.Len(t, result.Prospects, 3)

	var upserted []string
	for _, item := range repo.upserted {
		upserted = append(upserted, item.ID())
	}
	assert.ElementsMatch(t, []string{"plat", "silver"}, upserted)

	for id, want := range map[string]bool{"plat": true, "silver": true, "rejected": false} {
		marked, _ := exclusions.Contains(context.Background(), id)
		assert.Equal(t, want, marked, id)
	}

	require.Len(t, notifier.digests, 1)
	assert.Contains(t, notifier.digests[0], "PLATINUM")
	assert.NotContains(t, notifier.digests[0], "SILVER", "the digest lists gold and platinum only")
}

type fakeDiscoverer struct {
	communities []domain.Community
	err         error
	limits      []int
}

func (d *fakeDiscoverer) Discover(_ context.Context, _ domain.ServiceProfile, limit int) ([]domain.Community, error) {
	d.limits = append(d.limits, limit)
	return d.communities, d.err
}

func TestPipelineSearchesDiscoveredPartitions(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		searched []string
	)
	src := &fakeSource{
		items: map[string][]domain.RawItem{"dronepilots": {rawItem("p1", "dronepilots", droneNeed)}},
		onSearch: func(partition string) {
			mu.Lock()
			searched = append(searched, partition)
			mu.Unlock()
		},
	}
	discoverer := &fakeDiscoverer{communities: []domain.Community{
		{Name: "DronePilots"},
		{Name: "Drones"},
		{Name: "mapping"},
		{Name: "surveying"},
	}}
	p := NewPipeline(PipelineDeps{
		Profiles:   staticProfiles{profile: droneProfile(t, "drones")},
		Fetcher:    newFetcher(src),
		Discoverer: discoverer,
		Config:     PipelineConfig{DiscoveryLimit: 2},
	})

	result, err := p.Run(context.Background(), "drone_services")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, discoverer.limits)
	assert.Equal(t, []string{"dronepilots", "mapping"}, result.Stats.DiscoveredPartitions)
	assert.Equal(t, 3, result.Stats.PartitionsSearched)
	assert.Contains(t, searched, "dronepilots")
	require.Len(t, result.Prospects, 1)
	assert.Equal(t, "p1", result.Prospects[0].ID())
}

func TestPipelineDiscoveryFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	src := &fakeSource{items: map[string][]domain.RawItem{"drones": {rawItem("p1", "drones", droneNeed)}}}
	discoverer := &fakeDiscoverer{err: domain.ErrUnavailable}
	p := NewPipeline(PipelineDeps{
		Profiles:   staticProfiles{profile: droneProfile(t, "drones")},
		Fetcher:    newFetcher(src),
		Discoverer: discoverer,
		Config:     PipelineConfig{DiscoveryLimit: 3},
	})

	result, err := p.Run(context.Background(), "drone_services")
	require.NoError(t, err)
	assert.Empty(t, result.Stats.DiscoveredPartitions)
	assert.Equal(t, 1, result.Stats.PartitionsSearched)
	assert.Len(t, result.Prospects, 1)
}

func TestPipelineDiscoveryNeedsLimit(t *testing.T) {
	t.Parallel()

	discoverer := &fakeDiscoverer{communities: []domain.Community{{Name: "mapping"}}}
	p := NewPipeline(PipelineDeps{
		Profiles:   staticProfiles{profile: droneProfile(t, "drones")},
		Fetcher:    newFetcher(&fakeSource{}),
		Discoverer: discoverer,
	})

	result, err := p.Run(context.Background(), "drone_services")
	require.NoError(t, err)
	assert.Empty(t, discoverer.limits)
	assert.Empty(t, result.Stats.DiscoveredPartitions)
}
