package scoring

import "github.com/The-Juice-Real/redgenv2/internal/domain"

// Engine runs pattern, context and composite phases for one profile.
// It is immutable after construction and safe for concurrent use.
type Engine struct {
	prefilter *PreFilter
	patterns  *PatternScorer
	context   *ContextScorer
	ranker    *CompositeRanker
}

// NewEngine prepares every phase for a validated profile.
func NewEngine(profile domain.ServiceProfile) *Engine {
	return &Engine{
		prefilter: NewPreFilter(profile),
		patterns:  NewPatternScorer(profile),
		context:   NewContextScorer(profile),
		ranker:    NewCompositeRanker(profile),
	}
}

// PreFilter exposes the gate so callers can run it before scoring.
func (e *Engine) PreFilter() *PreFilter {
	return e.prefilter
}

// Evaluate runs only the pre-filter.
func (e *Engine) Evaluate(item domain.RawItem) Verdict {
	return e.prefilter.Evaluate(item)
}

// Score runs the weighted phases on an item that already passed the gate.
func (e *Engine) Score(item domain.RawItem) domain.ScoredItem {
	pattern := e.patterns.Score(item)
	ctxResult := e.context.Score(item)

	sub := pattern.SubScores
	sub.Context = ctxResult.Score

	indicators := pattern.Indicators()
	indicators = append(indicators, ctxResult.Signals...)
	return e.ranker.Score(item, sub, Signals{Indicators: indicators, Penalty: pattern.Penalty})
}
