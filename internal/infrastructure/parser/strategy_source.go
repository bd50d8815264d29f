package parser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
	"github.com/The-Juice-Real/redgenv2/internal/source"
)

// StrategySource implements SourceClient by routing each partition to a
// registered source strategy.
type StrategySource struct {
	registry      *source.Registry
	defaultSource string
	routes        map[string]string
	logger        *slog.Logger

	// owners remembers which strategy produced an item so comment requests
	// reach the same backend.
	owners sync.Map
}

var _ ports.SourceClient = (*StrategySource)(nil)

// NewStrategySource wires the registry with partition routes from config.
func NewStrategySource(reg *source.Registry, defaultSource string, routes map[string]string, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry:      reg,
		defaultSource: defaultSource,
		routes:        routes,
		logger:        log,
	}
}

// Search delegates to the strategy configured for the partition.
func (s *StrategySource) Search(ctx context.Context, req ports.SearchRequest) (ports.SearchPage, error) {
	strategy, err := s.resolve(req.Partition)
	if err != nil {
		return ports.SearchPage{}, err
	}

	s.debug("search partition", "partition", req.Partition, "source", strategy.Name(), "cursor", req.Cursor)
	page, err := strategy.Search(ctx, req)
	if err != nil {
		return ports.SearchPage{}, err
	}
	for _, item := range page.Items {
		s.owners.Store(item.ID, strategy.Name())
	}
	s.debug("partition page fetched", "partition", req.Partition, "items", len(page.Items), "next", page.Next)
	return page, nil
}

// FetchComments asks the strategy that produced the item.
func (s *StrategySource) FetchComments(ctx context.Context, itemID string, limits ports.CommentLimits) ([]domain.RawComment, error) {
	name := s.defaultSource
	if owner, ok := s.owners.Load(itemID); ok {
		name = owner.(string)
	}
	strategy, err := s.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	return strategy.FetchComments(ctx, itemID, limits)
}

func (s *StrategySource) resolve(partition string) (source.Source, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("source registry is not configured")
	}
	name := s.defaultSource
	if routed, ok := s.routes[partition]; ok && routed != "" {
		name = routed
	}
	strategy, err := s.registry.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("partition %s: %w", partition, err)
	}
	return strategy, nil
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
