package scoring

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/profile"
)

func testProfile() domain.ServiceProfile {
	return domain.ServiceProfile{
		Type:                   "widgets",
		Partitions:             []string{"widgets"},
		SearchTerms:            []string{"widget repair", "widget install"},
		QualificationThreshold: 40,
		RequireNeedPhrasing:    true,
		Caps:                   domain.DefaultCaps(),
		Patterns: domain.PatternTables{
			Urgency: []domain.Pattern{
				{Label: "urgent", Phrases: []string{"urgent", "asap"}, Points: 12},
				{Label: "deadline", Phrases: []string{"deadline"}, Points: 12},
			},
			Budget: []domain.Pattern{
				{Label: "amount", Phrases: []string{"$"}, Points: 20},
			},
			Authority: []domain.Pattern{
				{Label: "owner", Phrases: []string{"owner", "ceo"}, Points: 25},
			},
			Quality: []domain.Pattern{
				{Label: "detail", Phrases: []string{"photos"}, Points: 5},
			},
		},
		UrgencyMultipliers: []domain.UrgencyMultiplier{{Phrases: []string{"asap"}, Factor: 1.5}},
		BudgetMultipliers:  []domain.BudgetMultiplier{{MinAmount: 1000, Factor: 1.5}},
	}
}

func item(id, title, body string) domain.RawItem {
	return domain.RawItem{ID: id, Title: title, Body: body, CreatedAt: time.Unix(1_700_000_000, 0)}
}

func TestPreFilterVerdicts(t *testing.T) {
	t.Parallel()

	f := NewPreFilter(testProfile())
	longEnough := "I need a business to help with widget repair at my shop this week please."

	cases := []struct {
		name   string
		item   domain.RawItem
		reason string
	}{
		{"thirty characters", item("a", "Need widget help now, thanks!!", ""), ReasonTooShort},
		{"too long", item("b", "need help", strings.Repeat("widget ", 400)), ReasonTooLong},
		{"links", item("c", "need business help", "see https://a.example https://b.example www.c.example for my widget repair offer today"), ReasonSpam},
		{"deleted", item("d", "Need a business to help with widget repair at my shop this week", "[deleted]"), ReasonSpam},
		{"spam phrase", item("e", "Business opportunity", "Click here to get the best widget repair deals of the whole year now"), ReasonSpam},
		{"no vocabulary", item("f", "My cat sat on the mat", "and it was a lovely sunny afternoon in the garden with tea"), ReasonNoBusinessTerm},
		{"statement", item("g", "Our widget install finished", "The business installed all widgets on time and the project is closed now."), ReasonNotANeed},
		{"passes", item("h", "Widget repair", longEnough), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v := f.Evaluate(tc.item)
			assert.Equal(t, tc.reason, v.Reason)
			assert.Equal(t, tc.reason == "", v.Pass)
			assert.Equal(t, v.Pass, f.Passes(tc.item))
		})
	}
}

func TestPreFilterNeedPhrasingOptional(t *testing.T) {
	t.Parallel()

	p := testProfile()
	p.RequireNeedPhrasing = false
	f := NewPreFilter(p)
	assert.True(t, f.Passes(item("g", "Our widget install finished", "The business installed all widgets on time and the project is closed now.")))
}

func TestPatternLabelCountsOnce(t *testing.T) {
	t.Parallel()

	s := NewPatternScorer(testProfile())
	res := s.Score(item("x", "URGENT urgent asap", "urgent again, asap"))
	assert.Equal(t, 12.0, res.SubScores.Urgency)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, []string{"urgency:urgent"}, res.Indicators())
}

func TestCapsForDimension(t *testing.T) {
	t.Parallel()

	caps := domain.DefaultCaps()
	assert.Equal(t, caps.Urgency, caps.For(domain.DimensionUrgency))
	assert.Equal(t, caps.Budget, caps.For(domain.DimensionBudget))
	assert.Equal(t, caps.Authority, caps.For(domain.DimensionAuthority))
	assert.Equal(t, caps.Quality, caps.For(domain.DimensionQuality))
	assert.Zero(t, caps.For(domain.Dimension("context")))
}

func TestPatternClampsToCap(t *testing.T) {
	t.Parallel()

	s := NewPatternScorer(testProfile())
	res := s.Score(item("x", "urgent deadline", ""))
	assert.Equal(t, 20.0, res.SubScores.Urgency)
}

func TestPatternNegativeSignals(t *testing.T) {
	t.Parallel()

	s := NewPatternScorer(testProfile())
	res := s.Score(item("x", "Need widget repair for free", "it is a student project"))
	assert.Equal(t, 25.0, res.Penalty)
	assert.ElementsMatch(t, []string{"free_work", "student"}, res.Negatives)
}

func TestContextSignals(t *testing.T) {
	t.Parallel()

	s := NewContextScorer(testProfile())

	quiet := s.Score(item("x", "hello", "nothing to see"))
	assert.Zero(t, quiet.Score)

	busy := item("y", "Widget repair problem", "my widget is broken, looking for someone to repair it")
	busy.Author = "op"
	busy.Comments = []domain.RawComment{
		{ID: "c1", Depth: 1, Author: "helper", Body: strings.Repeat("detailed advice ", 5)},
		{ID: "c2", ParentID: "c1", Depth: 2, Author: "op", Body: "thanks"},
	}
	res := s.Score(busy)
	assert.InDelta(t, 10.0, res.Score, 1e-9)
	assert.Contains(t, res.Signals, "context:back_and_forth")
	assert.Contains(t, res.Signals, "context:problem_solution")
}

func TestCompositeAlwaysWithinRange(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	caps := domain.DefaultCaps()
	for i := 0; i < 5000; i++ {
		sub := domain.SubScores{
			Urgency:   rng.Float64()*400 - 100,
			Budget:    rng.Float64()*400 - 100,
			Authority: rng.Float64()*400 - 100,
			Quality:   rng.Float64()*400 - 100,
			Context:   rng.Float64()*400 - 100,
		}
		c := Composite(sub, caps, rng.Float64()*50, rng.Float64()*50, rng.Float64()*200-50)
		require.GreaterOrEqual(t, c, 0.0)
		require.LessOrEqual(t, c, 100.0)
	}
}

func TestCompositeMaximalMatchesStayBounded(t *testing.T) {
	t.Parallel()

	r := NewCompositeRanker(testProfile())
	it := item("max", "URGENT asap deadline, owner CEO here", "paying $90k, photos ready, need widget repair and widget install")
	it.Engagement = domain.Engagement{Score: 10_000, NumComments: 10_000}
	caps := domain.DefaultCaps()
	sub := domain.SubScores{Urgency: caps.Urgency, Budget: caps.Budget, Authority: caps.Authority, Quality: caps.Quality, Context: caps.Context}

	scored := r.Score(it, sub, Signals{})
	assert.Equal(t, 100.0, scored.Composite)
	assert.Equal(t, domain.TierPlatinum, scored.Tier)
	assert.Equal(t, 2.25, scored.Multiplier)
}

func TestZeroSignalItemKeepsOnlyBonuses(t *testing.T) {
	t.Parallel()

	p := testProfile()
	r := NewCompositeRanker(p)
	it := item("z", "need widget repair", "nothing else useful, asap $5000")
	it.Engagement = domain.Engagement{Score: 40, NumComments: 4}

	scored := r.Score(it, domain.SubScores{}, Signals{Penalty: 1})
	want := EngagementBonus(it.Engagement) + SemanticBonus(normalize(it.Title, it.Body), p.SearchTerms) - 1
	assert.InDelta(t, want, scored.Composite, 1e-9)
	assert.Equal(t, 1.0, scored.Multiplier)
	assert.Equal(t, domain.TierRejected, scored.Tier)

	p.QualificationThreshold = 0
	scored = NewCompositeRanker(p).Score(it, domain.SubScores{}, Signals{Penalty: 1})
	assert.NotEqual(t, domain.TierRejected, scored.Tier)
}

func TestTierMonotonic(t *testing.T) {
	t.Parallel()

	for _, threshold := range []float64{0, 25, 45, 70, 90, 100} {
		prev := domain.TierFor(0, threshold)
		for c := 0.0; c <= 100; c += 0.5 {
			tier := domain.TierFor(c, threshold)
			require.GreaterOrEqual(t, tier.Rank(), prev.Rank(), "threshold %.0f composite %.1f", threshold, c)
			prev = tier
		}
	}
}

func TestStatedAmount(t *testing.T) {
	t.Parallel()

	cases := map[string]float64{
		"budget is $5000":                   5000,
		"around $5,000 total":               5000,
		"$2.5k or $900":                     2500,
		"we pay $ 300 per video":            300,
		"need someone for $50 kit assembly": 50,
		"budget is $5 knives":               5,
		"$3kish":                            3,
	}
	for text, want := range cases {
		got, ok := StatedAmount(text)
		require.True(t, ok, text)
		assert.InDelta(t, want, got, 1e-9, text)
	}
	_, ok := StatedAmount("no money mentioned")
	assert.False(t, ok)
}

func TestRankOrdering(t *testing.T) {
	t.Parallel()

	older := time.Unix(1_000, 0)
	newer := time.Unix(2_000, 0)
	items := []domain.ScoredItem{
		{Item: domain.RawItem{ID: "low", CreatedAt: newer}, Composite: 50},
		{Item: domain.RawItem{ID: "tie-old", CreatedAt: older, Engagement: domain.Engagement{Score: 5}}, Composite: 80},
		{Item: domain.RawItem{ID: "tie-new", CreatedAt: newer, Engagement: domain.Engagement{Score: 5}}, Composite: 80},
		{Item: domain.RawItem{ID: "tie-popular", CreatedAt: older, Engagement: domain.Engagement{Score: 50}}, Composite: 80},
		{Item: domain.RawItem{ID: "top", CreatedAt: older}, Composite: 95},
	}
	Rank(items)

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.Item.ID
	}
	assert.Equal(t, []string{"top", "tie-popular", "tie-new", "tie-old", "low"}, ids)
}

func TestDroneScenario(t *testing.T) {
	t.Parallel()

	catalog, err := profile.Default()
	require.NoError(t, err)
	drone, err := catalog.Get("drone_services")
	require.NoError(t, err)

	engine := NewEngine(drone)
	it := item("drone-1", "", "My company's CEO needs a $5000 drone inspection urgently, deadline Friday")
	require.True(t, engine.PreFilter().Passes(it))

	scored := engine.Score(it)
	assert.Positive(t, scored.SubScores.Urgency)
	assert.Positive(t, scored.SubScores.Budget)
	assert.Positive(t, scored.SubScores.Authority)
	assert.GreaterOrEqual(t, scored.Composite, 70.0)
	assert.Contains(t, []domain.Tier{domain.TierGold, domain.TierPlatinum}, scored.Tier)
	assert.Equal(t, scored.Composite, scored.LocalScore)
	assert.Equal(t, domain.EscalationLocalOnly, scored.Escalation)
}
