package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
)

type fakeClient struct {
	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
	score    float64
	fail     map[string]error
	delay    time.Duration
}

func (c *fakeClient) Enrich(ctx context.Context, item domain.RawItem, local float64) (domain.EnrichedResult, error) {
	c.calls.Add(1)
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return domain.EnrichedResult{}, ctx.Err()
		}
	}
	if err := c.fail[item.ID]; err != nil {
		return domain.EnrichedResult{}, err
	}
	return domain.EnrichedResult{Score: c.score, Confidence: 0.9}, nil
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]domain.EnrichedResult
}

func (c *mapCache) Get(id string) (domain.EnrichedResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.m[id]
	return r, ok
}

func (c *mapCache) Put(id string, r domain.EnrichedResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = r
}

func goldItems(n int) []domain.ScoredItem {
	out := make([]domain.ScoredItem, n)
	for i := range out {
		score := 85 + float64(i%15)
		out[i] = domain.ScoredItem{
			Item:       domain.RawItem{ID: fmt.Sprintf("p%02d", i)},
			LocalScore: score,
			Composite:  score,
			Tier:       domain.TierFor(score, 40),
			Escalation: domain.EscalationLocalOnly,
		}
	}
	return out
}

func countStates(items []domain.ScoredItem) map[domain.EscalationState]int {
	out := map[domain.EscalationState]int{}
	for _, it := range items {
		out[it.Escalation]++
	}
	return out
}

func TestBudgetNeverOverspentUnderContention(t *testing.T) {
	t.Parallel()

	b := NewBudget(5)
	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryConsume() {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, granted.Load())
	assert.Equal(t, 5, b.Used())
	assert.Zero(t, b.Remaining())
	assert.False(t, b.TryConsume())
}

func TestNegativeBudgetIsEmpty(t *testing.T) {
	t.Parallel()

	b := NewBudget(-3)
	assert.False(t, b.TryConsume())
	assert.Zero(t, b.Limit())
}

func TestReserveWrapsBudgetExhausted(t *testing.T) {
	t.Parallel()

	b := NewBudget(1)
	require.NoError(t, b.Reserve())

	err := b.Reserve()
	require.ErrorIs(t, err, domain.ErrBudgetExhausted)
	assert.Contains(t, err.Error(), "1 of 1 calls used")
	assert.Equal(t, 1, b.Used())
}

func TestFiftyCandidatesBudgetFive(t *testing.T) {
	t.Parallel()

	client := &fakeClient{score: 99}
	gate := NewGate(client, nil, Config{Concurrency: 8}, nil)
	budget := NewBudget(5)

	out := gate.Escalate(context.Background(), goldItems(50), budget, 40)

	states := countStates(out.Items)
	assert.Equal(t, 5, states[domain.EscalationEnriched])
	assert.Equal(t, 45, states[domain.EscalationSkipped])
	assert.Equal(t, 5, out.CallsUsed)
	assert.Equal(t, 45, out.Skipped)
	assert.Equal(t, 50, out.Candidates)
	assert.EqualValues(t, 5, client.calls.Load())
	assert.LessOrEqual(t, budget.Used(), budget.Limit())

	for _, it := range out.Items {
		if it.Escalation == domain.EscalationSkipped {
			assert.Equal(t, it.LocalScore, it.Composite)
			assert.Equal(t, SkipBudgetExhausted, it.SkipReason)
		}
	}
}

func TestHighestCompositeAdmittedFirst(t *testing.T) {
	t.Parallel()

	items := goldItems(15)
	gate := NewGate(&fakeClient{score: 0}, nil, Config{}, nil)

	out := gate.Escalate(context.Background(), items, NewBudget(3), 40)
	for _, it := range out.Items {
		if it.LocalScore >= 97 {
			assert.Equal(t, domain.EscalationEnriched, it.Escalation, it.ID())
		} else {
			assert.Equal(t, domain.EscalationSkipped, it.Escalation, it.ID())
		}
	}
}

func TestEnrichmentNeverLowersScore(t *testing.T) {
	t.Parallel()

	items := goldItems(1)
	gate := NewGate(&fakeClient{score: 10}, nil, Config{}, nil)

	out := gate.Escalate(context.Background(), items, NewBudget(5), 40)
	got := out.Items[0]
	assert.Equal(t, domain.EscalationEnriched, got.Escalation)
	assert.Equal(t, got.LocalScore, got.Composite)
	require.NotNil(t, got.Enrichment)
	assert.Equal(t, 10.0, got.Enrichment.Score)
}

func TestEnrichmentRaisesScoreAndTier(t *testing.T) {
	t.Parallel()

	item := domain.ScoredItem{
		Item:       domain.RawItem{ID: "gold"},
		LocalScore: 80,
		Composite:  80,
		Tier:       domain.TierGold,
	}
	gate := NewGate(&fakeClient{score: 150}, nil, Config{EligibilityThreshold: 75}, nil)

	out := gate.Escalate(context.Background(), []domain.ScoredItem{item}, NewBudget(1), 40)
	assert.Equal(t, 100.0, out.Items[0].Composite)
	assert.Equal(t, domain.TierPlatinum, out.Items[0].Tier)
	assert.Equal(t, 80.0, out.Items[0].LocalScore)
}

func TestFailedCallsFallBackToLocal(t *testing.T) {
	t.Parallel()

	items := goldItems(4)
	client := &fakeClient{score: 99, fail: map[string]error{
		"p01": domain.ErrEnrichmentUnavailable,
		"p02": domain.ErrQuotaExceeded,
	}}
	gate := NewGate(client, nil, Config{}, nil)

	out := gate.Escalate(context.Background(), items, NewBudget(10), 40)
	assert.Equal(t, 2, out.Failures)
	assert.Equal(t, 4, out.CallsUsed)
	for _, it := range out.Items {
		switch it.ID() {
		case "p01", "p02":
			assert.Equal(t, domain.EscalationLocalOnly, it.Escalation)
			assert.Equal(t, it.LocalScore, it.Composite)
			assert.Nil(t, it.Enrichment)
		default:
			assert.Equal(t, domain.EscalationEnriched, it.Escalation)
		}
	}
}

func TestCallTimeoutCountsAsFailure(t *testing.T) {
	t.Parallel()

	client := &fakeClient{score: 99, delay: time.Second}
	gate := NewGate(client, nil, Config{CallTimeout: 20 * time.Millisecond}, nil)

	out := gate.Escalate(context.Background(), goldItems(2), NewBudget(5), 40)
	assert.Equal(t, 2, out.Failures)
	assert.Equal(t, 0, countStates(out.Items)[domain.EscalationEnriched])
}

func TestCacheHitsDoNotConsumeBudget(t *testing.T) {
	t.Parallel()

	items := goldItems(3)
	cache := &mapCache{m: map[string]domain.EnrichedResult{
		"p00": {Score: 95, Confidence: 1},
		"p01": {Score: 95, Confidence: 1},
	}}
	client := &fakeClient{score: 99}
	gate := NewGate(client, cache, Config{}, nil)
	budget := NewBudget(1)

	out := gate.Escalate(context.Background(), items, budget, 40)
	assert.Equal(t, 2, out.CacheHits)
	assert.Equal(t, 1, out.CallsUsed)
	assert.Equal(t, 3, countStates(out.Items)[domain.EscalationEnriched])
	assert.EqualValues(t, 1, client.calls.Load())

	_, cached := cache.Get("p02")
	assert.True(t, cached)
}

func TestNoClientKeepsEverythingLocal(t *testing.T) {
	t.Parallel()

	gate := NewGate(nil, nil, Config{}, nil)
	out := gate.Escalate(context.Background(), goldItems(5), NewBudget(5), 40)
	assert.Equal(t, 5, countStates(out.Items)[domain.EscalationLocalOnly])
	assert.Zero(t, out.Candidates)
}

func TestSilverItemsAreNotCandidates(t *testing.T) {
	t.Parallel()

	items := []domain.ScoredItem{
		{Item: domain.RawItem{ID: "silver"}, Composite: 60, LocalScore: 60, Tier: domain.TierSilver},
		{Item: domain.RawItem{ID: "gold-low"}, Composite: 75, LocalScore: 75, Tier: domain.TierGold},
	}
	gate := NewGate(&fakeClient{score: 99}, nil, Config{}, nil)
	out := gate.Escalate(context.Background(), items, NewBudget(5), 40)
	assert.Zero(t, out.Candidates)
	assert.Equal(t, 2, countStates(out.Items)[""])
}

func TestConcurrentGatesShareBudget(t *testing.T) {
	t.Parallel()

	client := &fakeClient{score: 99, delay: time.Millisecond}
	gate := NewGate(client, nil, Config{Concurrency: 16}, nil)
	budget := NewBudget(5)

	var wg sync.WaitGroup
	var enriched atomic.Int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := gate.Escalate(context.Background(), goldItems(30), budget, 40)
			enriched.Add(int64(countStates(out.Items)[domain.EscalationEnriched]))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, enriched.Load())
	assert.EqualValues(t, 5, client.calls.Load())
	assert.LessOrEqual(t, client.peak.Load(), int64(5))
}

func TestFailureWrapsTaxonomy(t *testing.T) {
	t.Parallel()

	gate := NewGate(&fakeClient{fail: map[string]error{"p00": domain.ErrQuotaExceeded}}, nil, Config{}, nil)
	_, err := gate.enrich(context.Background(), goldItems(1)[0])
	assert.True(t, errors.Is(err, domain.ErrEnrichmentFailure))
	assert.True(t, errors.Is(err, domain.ErrQuotaExceeded))
}
