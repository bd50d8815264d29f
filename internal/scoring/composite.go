package scoring

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
)

// Dimension weights of the composite.
const (
	WeightUrgency   = 0.20
	WeightBudget    = 0.30
	WeightAuthority = 0.25
	WeightQuality   = 0.15
	WeightContext   = 0.10

	MaxEngagementBonus = 10.0
	MaxSemanticBonus   = 10.0
)

var amountPattern = regexp.MustCompile(`\$\s?(\d[\d,]*(?:\.\d+)?)(k\b)?`)

var semanticNeedTerms = []string{"need", "looking for", "seeking", "recommend", "hire"}

// Signals carries what earlier phases found, beyond the sub-scores.
type Signals struct {
	Indicators []string
	Penalty    float64
}

// CompositeRanker turns sub-scores into a composite score and tier.
type CompositeRanker struct {
	profile domain.ServiceProfile
}

func NewCompositeRanker(profile domain.ServiceProfile) *CompositeRanker {
	return &CompositeRanker{profile: profile}
}

// Weighted returns the weighted sum of sub-scores normalised to 0..100
// within their caps.
func Weighted(sub domain.SubScores, caps domain.Caps) float64 {
	return normalised(sub.Urgency, caps.Urgency)*WeightUrgency +
		normalised(sub.Budget, caps.Budget)*WeightBudget +
		normalised(sub.Authority, caps.Authority)*WeightAuthority +
		normalised(sub.Quality, caps.Quality)*WeightQuality +
		normalised(sub.Context, caps.Context)*WeightContext
}

// Composite combines the weighted base with bonuses and penalty and clamps
// the result to [0,100].
func Composite(sub domain.SubScores, caps domain.Caps, engagementBonus, semanticBonus, penalty float64) float64 {
	base := Weighted(sub, caps)
	return clamp(base+clamp(engagementBonus, 0, MaxEngagementBonus)+clamp(semanticBonus, 0, MaxSemanticBonus)-max(penalty, 0), 0, 100)
}

// EngagementBonus rewards discussion and votes, up to 10 points.
func EngagementBonus(e domain.Engagement) float64 {
	score := max(e.Score, 0)
	comments := max(e.NumComments, 0)
	return clamp(float64(comments)*0.5+float64(score)/20, 0, MaxEngagementBonus)
}

// SemanticBonus rewards explicit service and need vocabulary, up to 10 points.
func SemanticBonus(text string, searchTerms []string) float64 {
	hits := countMatches(text, searchTerms) + countMatches(text, semanticNeedTerms)
	return clamp(float64(hits)*2, 0, MaxSemanticBonus)
}

// Multiplier returns the combined urgency and budget boost for text. Each
// family contributes its highest matching tier; no match gives 1.
func (r *CompositeRanker) Multiplier(text string) float64 {
	urgency := 1.0
	for _, m := range r.profile.UrgencyMultipliers {
		if _, ok := firstMatch(text, m.Phrases); ok && m.Factor > urgency {
			urgency = m.Factor
		}
	}
	budget := 1.0
	if amount, ok := StatedAmount(text); ok {
		for _, m := range r.profile.BudgetMultipliers {
			if amount >= m.MinAmount && m.Factor > budget {
				budget = m.Factor
			}
		}
	}
	return urgency * budget
}

// StatedAmount extracts the largest dollar figure in text, honouring a "k"
// suffix.
func StatedAmount(text string) (float64, bool) {
	var best float64
	found := false
	for _, m := range amountPattern.FindAllStringSubmatch(strings.ToLower(text), -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		if m[2] == "k" {
			v *= 1000
		}
		if !found || v > best {
			best, found = v, true
		}
	}
	return best, found
}

// Score builds the ScoredItem. Items without any pattern or context signal
// keep only bonuses minus penalty as composite and never qualify unless the
// profile threshold is zero.
func (r *CompositeRanker) Score(item domain.RawItem, sub domain.SubScores, signals Signals) domain.ScoredItem {
	text := normalize(item.Title, item.Body)
	engagement := EngagementBonus(item.Engagement)
	semantic := SemanticBonus(text, r.profile.SearchTerms)

	hasSignal := Weighted(sub, r.profile.Caps) > 0
	composite := Composite(sub, r.profile.Caps, engagement, semantic, signals.Penalty)
	multiplier := 1.0
	if hasSignal {
		multiplier = r.Multiplier(text)
		composite = min(composite*multiplier, 100)
	}

	tier := domain.TierFor(composite, r.profile.QualificationThreshold)
	if !hasSignal && r.profile.QualificationThreshold > 0 {
		tier = domain.TierRejected
	}

	return domain.ScoredItem{
		Item:            item,
		SubScores:       sub,
		EngagementBonus: engagement,
		SemanticBonus:   semantic,
		Penalty:         signals.Penalty,
		Multiplier:      multiplier,
		LocalScore:      composite,
		Composite:       composite,
		Tier:            tier,
		Indicators:      append([]string(nil), signals.Indicators...),
		Escalation:      domain.EscalationLocalOnly,
	}
}

func normalised(v, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return clamp(v, 0, limit) / limit * 100
}
