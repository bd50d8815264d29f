package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/escalation"
	"github.com/The-Juice-Real/redgenv2/internal/exclusion"
	"github.com/The-Juice-Real/redgenv2/internal/fetcher"
	"github.com/The-Juice-Real/redgenv2/internal/metrics"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
	"github.com/The-Juice-Real/redgenv2/internal/scoring"
)

// ProfileResolver looks up a validated service profile.
type ProfileResolver interface {
	Get(serviceType string) (domain.ServiceProfile, error)
}

// ItemScorer is the local scoring stack for one profile.
type ItemScorer interface {
	Evaluate(item domain.RawItem) scoring.Verdict
	Score(item domain.RawItem) domain.ScoredItem
}

// ScorerFactory builds the scorer for a profile at the start of a run.
type ScorerFactory func(profile domain.ServiceProfile) ItemScorer

// PipelineConfig bounds a run.
type PipelineConfig struct {
	Concurrency          int
	MaxItemsPerPartition int
	EnrichmentBudget     int
	DigestSize           int
	// DiscoveryLimit caps the partitions discovery may add to a run.
	DiscoveryLimit int
	// MarkQualified adds persisted prospects to the exclusion store once
	// the run has finished.
	MarkQualified bool
}

// DefaultPipelineConfig returns the run defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Concurrency:          8,
		MaxItemsPerPartition: 100,
		EnrichmentBudget:     escalation.DefaultBudget,
		DigestSize:           10,
		MarkQualified:        true,
	}
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Profiles   ProfileResolver
	Fetcher    *fetcher.Fetcher
	Exclusions ports.ExclusionStore
	Gate       *escalation.Gate
	Repository ports.ProspectRepository
	Notifier   ports.Notifier
	// Discoverer is optional; without it a run searches the profile
	// partitions only.
	Discoverer ports.PartitionDiscoverer
	Scorers    ScorerFactory
	Config     PipelineConfig
	Logger     *slog.Logger
	Now        func() time.Time
}

// Pipeline implements the prospect qualification workflow.
type Pipeline struct {
	profiles   ProfileResolver
	fetcher    *fetcher.Fetcher
	exclusions ports.ExclusionStore
	gate       *escalation.Gate
	repository ports.ProspectRepository
	notifier   ports.Notifier
	discoverer ports.PartitionDiscoverer
	scorers    ScorerFactory
	cfg        PipelineConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	cfg := deps.Config
	def := DefaultPipelineConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxItemsPerPartition <= 0 {
		cfg.MaxItemsPerPartition = def.MaxItemsPerPartition
	}
	if cfg.EnrichmentBudget < 0 {
		cfg.EnrichmentBudget = 0
	}
	if cfg.DigestSize <= 0 {
		cfg.DigestSize = def.DigestSize
	}
	if cfg.DiscoveryLimit < 0 {
		cfg.DiscoveryLimit = 0
	}

	scorers := deps.Scorers
	if scorers == nil {
		scorers = func(profile domain.ServiceProfile) ItemScorer {
			return scoring.NewEngine(profile)
		}
	}
	gate := deps.Gate
	if gate == nil {
		gate = escalation.NewGate(nil, nil, escalation.DefaultConfig(), deps.Logger)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		profiles:   deps.Profiles,
		fetcher:    deps.Fetcher,
		exclusions: deps.Exclusions,
		gate:       gate,
		repository: deps.Repository,
		notifier:   deps.Notifier,
		discoverer: deps.Discoverer,
		scorers:    scorers,
		cfg:        cfg,
		logger:     deps.Logger,
		now:        now,
	}
}

// partitionResult is what one fetch+score task hands back.
type partitionResult struct {
	partition string
	scored    []domain.ScoredItem
	fetched   int
	malformed int
	rejected  map[string]int
	failed    bool
	partial   bool
	degraded  bool
}

// Run qualifies prospects for one service type. Only configuration errors
// are returned; partition, item and enrichment failures are counted in the
// statistics. Cancellation yields the items scored so far with
// Stats.Cancelled set and a nil error.
func (p *Pipeline) Run(ctx context.Context, serviceType string) (domain.RunResult, error) {
	stats := domain.NewRunStats(uuid.NewString(), serviceType, p.now())
	result := domain.RunResult{Prospects: []domain.ScoredItem{}, Stats: stats}

	if p.profiles == nil || p.fetcher == nil {
		return result, fmt.Errorf("pipeline misconfigured: profiles and fetcher are required")
	}
	profile, err := p.profiles.Get(serviceType)
	if err != nil {
		result.Stats.FinishedAt = p.now()
		return result, err
	}
	if err := profile.Validate(); err != nil {
		result.Stats.FinishedAt = p.now()
		return result, err
	}

	excluded, err := exclusion.Load(ctx, p.exclusions)
	if err != nil {
		if ctx.Err() == nil {
			stats.ExclusionsUnavailable = true
			p.warn("exclusion store unavailable, continuing without it", "run_id", stats.RunID, "error", err)
		}
		excluded = exclusion.NewSet()
	}

	profile, stats.DiscoveredPartitions = p.discover(ctx, profile)

	scorer := p.scorers(profile)
	p.info("run started", "run_id", stats.RunID, "service_type", serviceType,
		"partitions", len(profile.Partitions), "excluded_ids", excluded.Len())

	partitions := p.harvest(ctx, profile, scorer)

	var scored []domain.ScoredItem
	for _, part := range partitions {
		stats.PartitionsSearched++
		stats.TotalFetched += part.fetched
		stats.Malformed += part.malformed
		for reason, n := range part.rejected {
			stats.PreFilterReasons[reason] += n
			stats.PreFilterRejected += n
		}
		if part.failed {
			stats.FailedPartitions = append(stats.FailedPartitions, part.partition)
		}
		if part.partial {
			stats.PartialPartitions = append(stats.PartialPartitions, part.partition)
		}
		if part.degraded {
			stats.DegradedPartitions = append(stats.DegradedPartitions, part.partition)
		}
		scored = append(scored, part.scored...)
	}
	stats.Scored = len(scored)
	slices.Sort(stats.FailedPartitions)
	slices.Sort(stats.PartialPartitions)
	slices.Sort(stats.DegradedPartitions)

	scored = dedupe(scored)
	scoring.Rank(scored)

	filtered := exclusion.Filter(scored, excluded)
	stats.ExcludedAsDuplicate = filtered.Excluded
	stats.ExclusionRate = filtered.Rate()

	prospects := filtered.Kept
	if ctx.Err() == nil {
		budget := escalation.NewBudget(p.cfg.EnrichmentBudget)
		outcome := p.gate.Escalate(ctx, prospects, budget, profile.QualificationThreshold)
		prospects = outcome.Items
		stats.EnrichmentCandidates = outcome.Candidates
		stats.EnrichmentCallsUsed = outcome.CallsUsed
		stats.EnrichmentFailures = outcome.Failures
		stats.EnrichmentSkipped = outcome.Skipped
		stats.EnrichmentCacheHits = outcome.CacheHits
		scoring.Rank(prospects)
	}

	for _, item := range prospects {
		stats.TierCounts[item.Tier]++
	}
	stats.Cancelled = ctx.Err() != nil
	stats.FinishedAt = p.now()

	result = domain.RunResult{Prospects: prospects, Stats: stats}
	metrics.ObserveRun(stats)
	p.info("run finished",
		"run_id", stats.RunID,
		"fetched", stats.TotalFetched,
		"prefilter_rejected", stats.PreFilterRejected,
		"scored", stats.Scored,
		"excluded", stats.ExcludedAsDuplicate,
		"enrichment_calls", stats.EnrichmentCallsUsed,
		"cancelled", stats.Cancelled)

	if !stats.Cancelled {
		p.persist(ctx, profile.Type, result)
	}
	return result, nil
}

// discover returns profile with the discovered partitions appended and the
// names it added. Discovery failures leave the profile untouched.
func (p *Pipeline) discover(ctx context.Context, profile domain.ServiceProfile) (domain.ServiceProfile, []string) {
	added := []string{}
	if p.discoverer == nil || p.cfg.DiscoveryLimit == 0 || ctx.Err() != nil {
		return profile, added
	}

	communities, err := p.discoverer.Discover(ctx, profile, p.cfg.DiscoveryLimit)
	if err != nil {
		p.warn("partition discovery failed", "service_type", profile.Type, "error", err)
		return profile, added
	}

	known := make(map[string]struct{}, len(profile.Partitions)+len(communities))
	for _, name := range profile.Partitions {
		known[strings.ToLower(name)] = struct{}{}
	}
	for _, c := range communities {
		name := strings.ToLower(c.Name)
		if name == "" {
			continue
		}
		if _, ok := known[name]; ok {
			continue
		}
		known[name] = struct{}{}
		added = append(added, name)
		if len(added) == p.cfg.DiscoveryLimit {
			break
		}
	}
	if len(added) == 0 {
		return profile, added
	}

	profile.Partitions = append(slices.Clone(profile.Partitions), added...)
	p.info("partitions discovered", "service_type", profile.Type, "added", added)
	return profile, added
}

// harvest fans out one task per partition, bounded by the configured width.
func (p *Pipeline) harvest(ctx context.Context, profile domain.ServiceProfile, scorer ItemScorer) []partitionResult {
	var (
		mu      sync.Mutex
		results = make([]partitionResult, 0, len(profile.Partitions))
		group   errgroup.Group
	)
	group.SetLimit(p.cfg.Concurrency)

	for _, partition := range profile.Partitions {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			res := p.processPartition(ctx, partition, profile.SearchTerms, scorer)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	slices.SortFunc(results, func(a, b partitionResult) int {
		switch {
		case a.partition < b.partition:
			return -1
		case a.partition > b.partition:
			return 1
		}
		return 0
	})
	return results
}

func (p *Pipeline) processPartition(ctx context.Context, partition string, terms []string, scorer ItemScorer) partitionResult {
	res := partitionResult{partition: partition, rejected: map[string]int{}}
	if ctx.Err() != nil {
		return res
	}

	window := p.fetcher.Fetch(ctx, partition, terms, p.cfg.MaxItemsPerPartition)
	for item := range window.Items() {
		res.fetched++
		if err := item.Validate(); err != nil {
			res.malformed++
			p.debug("item discarded", "partition", partition, "error", err)
			continue
		}
		if verdict := scorer.Evaluate(item); !verdict.Pass {
			res.rejected[verdict.Reason]++
			continue
		}
		res.scored = append(res.scored, scorer.Score(item))
	}

	p.debug("partition harvested", "partition", partition, "pages", window.Pages(), "items", res.fetched)
	res.partial = window.Partial()
	res.degraded = window.Degraded()
	if err := window.Err(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		res.failed = true
		p.warn("partition dropped", "partition", partition, "error", err)
	}
	return res
}

// persist stores Silver and better prospects and the run record, then
// notifies. Failures here are logged; the run result is already final.
func (p *Pipeline) persist(ctx context.Context, serviceType string, result domain.RunResult) {
	var qualified []domain.ScoredItem
	for _, item := range result.Prospects {
		if item.Tier.Qualified() {
			qualified = append(qualified, item)
		}
	}

	if p.repository != nil {
		if len(qualified) > 0 {
			if err := p.repository.UpsertProspects(ctx, serviceType, qualified); err != nil {
				p.warn("persist prospects failed", "run_id", result.Stats.RunID, "error", err)
			} else if p.cfg.MarkQualified && p.exclusions != nil && !result.Stats.ExclusionsUnavailable {
				p.markProcessed(ctx, qualified)
			}
		}
		if err := p.saveRun(ctx, result); err != nil {
			p.warn("persist run failed", "run_id", result.Stats.RunID, "error", err)
		}
	}

	if p.notifier == nil {
		return
	}
	digest := BuildDigest(serviceType, result.Prospects, p.cfg.DigestSize)
	if digest == "" {
		return
	}
	if err := p.notifier.PublishDigest(ctx, digest); err != nil {
		p.warn("publish digest failed", "run_id", result.Stats.RunID, "error", err)
	}
}

func (p *Pipeline) markProcessed(ctx context.Context, items []domain.ScoredItem) {
	for _, item := range items {
		if err := p.exclusions.Add(ctx, item.ID()); err != nil {
			p.warn("mark processed failed", "item", item.ID(), "error", err)
			return
		}
	}
}

func (p *Pipeline) saveRun(ctx context.Context, result domain.RunResult) error {
	statsJSON, err := CanonicalStats(result.Stats)
	if err != nil {
		return err
	}
	fingerprint, err := Fingerprint(result.Stats, result.Prospects)
	if err != nil {
		return err
	}
	return p.repository.SaveRun(ctx, domain.RunRecord{
		RunID:       result.Stats.RunID,
		ServiceType: result.Stats.ServiceType,
		StartedAt:   result.Stats.StartedAt,
		FinishedAt:  result.Stats.FinishedAt,
		StatsJSON:   statsJSON,
		Fingerprint: fingerprint,
	})
}

// dedupe keeps the first occurrence of an identifier; the same item can
// surface in two partitions.
func dedupe(items []domain.ScoredItem) []domain.ScoredItem {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if _, ok := seen[item.ID()]; ok {
			continue
		}
		seen[item.ID()] = struct{}{}
		out = append(out, item)
	}
	return out
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
