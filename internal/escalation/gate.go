package escalation

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
)

// SkipBudgetExhausted is the skip reason when the run budget ran out.
const SkipBudgetExhausted = "budget_exhausted"

// Config tunes candidate selection and call fan-out.
type Config struct {
	EligibilityThreshold float64
	Concurrency          int
	CallTimeout          time.Duration
}

// DefaultConfig returns the gate defaults.
func DefaultConfig() Config {
	return Config{EligibilityThreshold: 85, Concurrency: 4, CallTimeout: 10 * time.Second}
}

// Outcome summarises one pass of the gate.
type Outcome struct {
	Items      []domain.ScoredItem
	Candidates int
	CallsUsed  int
	Failures   int
	Skipped    int
	CacheHits  int
}

// Gate decides which top items are worth a metered enrichment call.
type Gate struct {
	client ports.EnrichmentClient
	cache  ports.EnrichmentCache
	cfg    Config
	logger *slog.Logger
}

// NewGate wires a gate. A nil client keeps every item local; a nil cache
// disables result reuse.
func NewGate(client ports.EnrichmentClient, cache ports.EnrichmentCache, cfg Config, logger *slog.Logger) *Gate {
	def := DefaultConfig()
	if cfg.EligibilityThreshold <= 0 {
		cfg.EligibilityThreshold = def.EligibilityThreshold
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	return &Gate{client: client, cache: cache, cfg: cfg, logger: logger}
}

// Eligible reports whether an item is an enrichment candidate.
func (g *Gate) Eligible(item domain.ScoredItem) bool {
	return item.Tier.Rank() >= domain.TierGold.Rank() && item.Composite >= g.cfg.EligibilityThreshold
}

// Escalate admits candidates in descending composite order against budget
// and enriches the admitted ones concurrently. Items are returned in input
// order; only candidates change.
func (g *Gate) Escalate(ctx context.Context, items []domain.ScoredItem, budget *Budget, threshold float64) Outcome {
	out := Outcome{Items: slices.Clone(items)}
	if g.client == nil {
		return out
	}

	var candidates []int
	for i, item := range out.Items {
		if g.Eligible(item) {
			candidates = append(candidates, i)
		}
	}
	out.Candidates = len(candidates)
	slices.SortStableFunc(candidates, func(a, b int) int {
		return cmp.Compare(out.Items[b].Composite, out.Items[a].Composite)
	})

	var pending []int
	for _, idx := range candidates {
		item := out.Items[idx]
		if cached, ok := g.lookup(item.ID()); ok {
			out.Items[idx] = applyEnrichment(item, cached, threshold)
			out.CacheHits++
			continue
		}
		if err := budget.Reserve(); err != nil {
			g.debug("enrichment skipped", "item", item.ID(), "reason", err)
			item.Escalation = domain.EscalationSkipped
			item.SkipReason = SkipBudgetExhausted
			out.Items[idx] = item
			out.Skipped++
			continue
		}
		item.Escalation = domain.EscalationPending
		out.Items[idx] = item
		pending = append(pending, idx)
	}
	out.CallsUsed = len(pending)
	if len(pending) == 0 {
		return out
	}

	failed := make([]bool, len(out.Items))
	var group errgroup.Group
	group.SetLimit(g.cfg.Concurrency)
	for _, idx := range pending {
		group.Go(func() error {
			item := out.Items[idx]
			result, err := g.enrich(ctx, item)
			if err != nil {
				g.warn("enrichment failed, keeping local score", "item", item.ID(), "error", err)
				item.Escalation = domain.EscalationLocalOnly
				out.Items[idx] = item
				failed[idx] = true
				return nil
			}
			g.store(item.ID(), result)
			out.Items[idx] = applyEnrichment(item, result, threshold)
			return nil
		})
	}
	_ = group.Wait()

	for _, f := range failed {
		if f {
			out.Failures++
		}
	}
	return out
}

func (g *Gate) enrich(ctx context.Context, item domain.ScoredItem) (domain.EnrichedResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	result, err := g.client.Enrich(callCtx, item.Item, item.LocalScore)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrEnrichmentTimeout) {
			err = fmt.Errorf("%w: %w", domain.ErrEnrichmentTimeout, err)
		}
		return domain.EnrichedResult{}, fmt.Errorf("%w: %w", domain.ErrEnrichmentFailure, err)
	}
	return result, nil
}

func (g *Gate) lookup(id string) (domain.EnrichedResult, bool) {
	if g.cache == nil {
		return domain.EnrichedResult{}, false
	}
	return g.cache.Get(id)
}

func (g *Gate) store(id string, result domain.EnrichedResult) {
	if g.cache == nil {
		return
	}
	g.cache.Put(id, result)
}

func (g *Gate) debug(msg string, args ...any) {
	if g.logger == nil {
		return
	}
	g.logger.Debug(msg, args...)
}

func (g *Gate) warn(msg string, args ...any) {
	if g.logger == nil {
		return
	}
	g.logger.Warn(msg, args...)
}

// applyEnrichment raises or confirms the composite; it never goes below the
// local score.
func applyEnrichment(item domain.ScoredItem, result domain.EnrichedResult, threshold float64) domain.ScoredItem {
	enriched := min(max(result.Score, 0), 100)
	item.Composite = max(item.LocalScore, enriched)
	tier := domain.TierFor(item.Composite, threshold)
	if tier.Rank() > item.Tier.Rank() {
		item.Tier = tier
	}
	item.Escalation = domain.EscalationEnriched
	r := result
	item.Enrichment = &r
	item.SkipReason = ""
	return item
}
