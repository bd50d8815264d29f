package scoring

import (
	"github.com/The-Juice-Real/redgenv2/internal/domain"
)

// NegativeSignal marks non-commercial or spam intent. Its points are
// subtracted from the composite regardless of dimension.
type NegativeSignal struct {
	Label   string
	Phrases []string
	Points  float64
}

var negativeSignals = []NegativeSignal{
	{Label: "free_work", Phrases: []string{"for free", "free of charge", "unpaid", "no budget", "volunteer"}, Points: 15},
	{Label: "self_promotion", Phrases: []string{"i offer", "we offer", "my services", "hire me", "my portfolio"}, Points: 12},
	{Label: "student", Phrases: []string{"student project", "school project", "homework", "class assignment"}, Points: 10},
	{Label: "spam_intent", Phrases: []string{"click here", "make money", "passive income", "giveaway"}, Points: 15},
	{Label: "hobby", Phrases: []string{"just curious", "for fun", "hobby project"}, Points: 8},
}

// Match is one pattern label that contributed points.
type Match struct {
	Dimension domain.Dimension
	Label     string
	Phrase    string
	Points    float64
}

// PatternResult is the output of the pattern phase.
type PatternResult struct {
	SubScores domain.SubScores
	Matches   []Match
	Negatives []string
	Penalty   float64
}

// Indicators renders matches as "dimension:label" strings.
func (r PatternResult) Indicators() []string {
	out := make([]string, 0, len(r.Matches)+len(r.Negatives))
	for _, m := range r.Matches {
		out = append(out, string(m.Dimension)+":"+m.Label)
	}
	for _, n := range r.Negatives {
		out = append(out, "negative:"+n)
	}
	return out
}

// PatternScorer evaluates the four pattern dimensions of a profile.
type PatternScorer struct {
	patterns domain.PatternTables
	caps     domain.Caps
}

func NewPatternScorer(profile domain.ServiceProfile) *PatternScorer {
	return &PatternScorer{patterns: profile.Patterns, caps: profile.Caps}
}

// Score sums the points of every matching label per dimension, counting a
// label once, and clamps each sum to the profile cap.
func (s *PatternScorer) Score(item domain.RawItem) PatternResult {
	text := normalize(item.Title, item.Body)

	var res PatternResult
	totals := make(map[domain.Dimension]float64, len(domain.Dimensions))
	for _, dim := range domain.Dimensions {
		for _, entry := range s.patterns.For(dim) {
			phrase, ok := firstMatch(text, entry.Phrases)
			if !ok {
				continue
			}
			totals[dim] += entry.Points
			res.Matches = append(res.Matches, Match{Dimension: dim, Label: entry.Label, Phrase: phrase, Points: entry.Points})
		}
	}

	capped := func(d domain.Dimension) float64 {
		return clamp(totals[d], 0, s.caps.For(d))
	}
	res.SubScores = domain.SubScores{
		Urgency:   capped(domain.DimensionUrgency),
		Budget:    capped(domain.DimensionBudget),
		Authority: capped(domain.DimensionAuthority),
		Quality:   capped(domain.DimensionQuality),
	}

	for _, neg := range negativeSignals {
		if _, ok := firstMatch(text, neg.Phrases); ok {
			res.Negatives = append(res.Negatives, neg.Label)
			res.Penalty += neg.Points
		}
	}
	return res
}
