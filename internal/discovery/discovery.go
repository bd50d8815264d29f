// Package discovery finds communities worth searching beyond the partitions
// a service profile lists.
package discovery

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
	"github.com/The-Juice-Real/redgenv2/internal/ratelimit"
)

var mentionPattern = regexp.MustCompile(`(?i)\br/([a-z0-9_]{2,21})\b`)

var businessTerms = []string{"business", "professional", "industry", "commercial", "service"}

// Config bounds the requests one discovery makes.
type Config struct {
	MaxKeywords       int
	ResultsPerKeyword int
	MinSubscribers    int
	Seeds             int
	MentionsPerSeed   int
}

// DefaultConfig returns the discovery defaults.
func DefaultConfig() Config {
	return Config{MaxKeywords: 5, ResultsPerKeyword: 10, MinSubscribers: 500, Seeds: 5, MentionsPerSeed: 5}
}

// Discoverer searches communities by profile keywords, follows the
// communities their descriptions mention and ranks the union.
type Discoverer struct {
	searcher ports.CommunitySearcher
	cache    ports.DiscoveryCache
	limiter  *ratelimit.Limiter
	cfg      Config
	logger   *slog.Logger
}

var _ ports.PartitionDiscoverer = (*Discoverer)(nil)

// New wires a discoverer. cache and limiter may be nil.
func New(searcher ports.CommunitySearcher, cache ports.DiscoveryCache, limiter *ratelimit.Limiter, cfg Config, logger *slog.Logger) *Discoverer {
	def := DefaultConfig()
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = def.MaxKeywords
	}
	if cfg.ResultsPerKeyword <= 0 {
		cfg.ResultsPerKeyword = def.ResultsPerKeyword
	}
	if cfg.MinSubscribers < 0 {
		cfg.MinSubscribers = 0
	}
	if cfg.Seeds <= 0 {
		cfg.Seeds = def.Seeds
	}
	if cfg.MentionsPerSeed <= 0 {
		cfg.MentionsPerSeed = def.MentionsPerSeed
	}
	return &Discoverer{searcher: searcher, cache: cache, limiter: limiter, cfg: cfg, logger: logger}
}

// Discover returns up to limit communities not already listed by profile,
// best first. It fails only when every keyword search failed.
func (d *Discoverer) Discover(ctx context.Context, profile domain.ServiceProfile, limit int) ([]domain.Community, error) {
	if limit <= 0 || len(profile.SearchTerms) == 0 {
		return nil, nil
	}
	key := cacheKey(profile, limit)
	if d.cache != nil {
		if cached, ok := d.cache.Get(key); ok {
			return cached, nil
		}
	}

	found, err := d.searchKeywords(ctx, profile.SearchTerms)
	if err != nil {
		return nil, err
	}
	found = append(found, d.related(ctx, found)...)

	known := make(map[string]struct{}, len(profile.Partitions))
	for _, p := range profile.Partitions {
		known[strings.ToLower(p)] = struct{}{}
	}
	ranked := rank(found, known)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	if d.cache != nil && ctx.Err() == nil {
		d.cache.Put(key, ranked)
	}
	d.debug("communities discovered", "service_type", profile.Type, "candidates", len(found), "kept", len(ranked))
	return ranked, nil
}

func (d *Discoverer) searchKeywords(ctx context.Context, terms []string) ([]domain.Community, error) {
	terms = terms[:min(len(terms), d.cfg.MaxKeywords)]

	var (
		out  []domain.Community
		errs []error
	)
	for _, term := range terms {
		if err := d.wait(ctx); err != nil {
			return nil, err
		}
		results, err := d.searcher.SearchCommunities(ctx, term, d.cfg.ResultsPerKeyword)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			d.warn("community search failed", "keyword", term, "error", err)
			errs = append(errs, err)
			continue
		}
		for _, c := range results {
			if c.Subscribers < d.cfg.MinSubscribers {
				continue
			}
			c.Source = domain.CommunityFromKeyword
			c.Keyword = term
			c.Score = min(float64(c.Subscribers)/20000, 8)
			out = append(out, c)
		}
	}
	if len(errs) == len(terms) {
		return nil, fmt.Errorf("discover communities: %w", errors.Join(errs...))
	}
	return out, nil
}

// related follows r/name mentions in the descriptions of the best seeds.
func (d *Discoverer) related(ctx context.Context, seeds []domain.Community) []domain.Community {
	seeds = slices.Clone(seeds)
	slices.SortStableFunc(seeds, func(a, b domain.Community) int { return cmp.Compare(b.Score, a.Score) })
	seeds = seeds[:min(len(seeds), d.cfg.Seeds)]

	seen := make(map[string]struct{}, len(seeds))
	for _, s := range seeds {
		seen[s.Name] = struct{}{}
	}

	var out []domain.Community
	for _, seed := range seeds {
		mentions := mentionPattern.FindAllStringSubmatch(seed.Description, -1)
		for _, m := range mentions[:min(len(mentions), d.cfg.MentionsPerSeed)] {
			name := strings.ToLower(m[1])
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}

			if err := d.wait(ctx); err != nil {
				return out
			}
			c, err := d.searcher.About(ctx, name)
			if err != nil {
				d.debug("related community skipped", "community", name, "error", err)
				continue
			}
			if c.Subscribers < d.cfg.MinSubscribers {
				continue
			}
			c.Name = name
			c.Source = domain.CommunityFromRelated
			c.Score = min(float64(c.Subscribers)/10000, 10)
			out = append(out, c)
		}
	}
	return out
}

// rank keeps the first occurrence of each name, applies activity and
// business boosts and sorts by score, then name.
func rank(communities []domain.Community, known map[string]struct{}) []domain.Community {
	seen := make(map[string]struct{}, len(communities))
	out := make([]domain.Community, 0, len(communities))
	for _, c := range communities {
		name := strings.ToLower(c.Name)
		if _, ok := known[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		c.Name = name
		if c.ActiveUsers > 100 {
			c.Score *= 1.2
		}
		description := strings.ToLower(c.Description)
		for _, term := range businessTerms {
			if strings.Contains(description, term) {
				c.Score *= 1.1
				break
			}
		}
		out = append(out, c)
	}
	slices.SortStableFunc(out, func(a, b domain.Community) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

func cacheKey(profile domain.ServiceProfile, limit int) string {
	return fmt.Sprintf("%s:%d:%s", profile.Type, limit, strings.Join(profile.SearchTerms, "|"))
}

func (d *Discoverer) wait(ctx context.Context) error {
	if d.limiter == nil {
		return ctx.Err()
	}
	return d.limiter.Acquire(ctx)
}

func (d *Discoverer) debug(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}

func (d *Discoverer) warn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}
