package parser

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
	"github.com/The-Juice-Real/redgenv2/internal/source"
)

var fallbackTemplates = []struct {
	title string
	body  string
}{
	{"Looking for help with %s", "Our business needs someone for %s this month. Budget is flexible, what would you recommend?"},
	{"Need a quote for %s", "I run a small company and need a professional for %s. Can anyone recommend a contractor?"},
	{"Anyone know a good service for %s?", "We are looking for a reliable provider for %s, ideally someone who can start next week."},
	{"Recommendations for %s", "Our team is seeking advice on %s before we hire anyone. What does it usually cost?"},
}

// FallbackSource produces a deterministic synthetic listing per partition.
// It only serves degraded mode and is never used unless configured.
type FallbackSource struct {
	perPartition int
	epoch        time.Time
}

var _ source.Source = (*FallbackSource)(nil)

// NewFallbackSource returns a source yielding perPartition items per partition.
func NewFallbackSource(perPartition int) *FallbackSource {
	if perPartition <= 0 {
		perPartition = 5
	}
	return &FallbackSource{perPartition: perPartition, epoch: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (s *FallbackSource) Name() string {
	return "fallback"
}

// Search returns the same items for the same partition and terms.
func (s *FallbackSource) Search(_ context.Context, req ports.SearchRequest) (ports.SearchPage, error) {
	if req.Cursor != "" {
		return ports.SearchPage{}, nil
	}
	topic := "general services"
	if len(req.Terms) > 0 {
		topic = req.Terms[0]
	}

	seed := fingerprint(req.Partition + "|" + strings.Join(req.Terms, ","))
	n := s.perPartition
	if req.Limit > 0 && req.Limit < n {
		n = req.Limit
	}

	items := make([]domain.RawItem, 0, n)
	for i := 0; i < n; i++ {
		tpl := fallbackTemplates[(int(seed%97)+i)%len(fallbackTemplates)]
		id := fmt.Sprintf("fallback_%s_%x_%d", req.Partition, seed&0xffff, i)
		items = append(items, domain.RawItem{
			ID:        id,
			Author:    fmt.Sprintf("fallback_user_%d", i),
			Partition: req.Partition,
			Title:     fmt.Sprintf(tpl.title, topic),
			Body:      fmt.Sprintf(tpl.body, topic),
			URL:       "",
			CreatedAt: s.epoch.Add(time.Duration(seed%1000+uint64(i)) * time.Hour),
			Engagement: domain.Engagement{
				Score:       int(seed%50) + i,
				NumComments: 0,
			},
		})
	}
	return ports.SearchPage{Items: items}, nil
}

func (s *FallbackSource) FetchComments(context.Context, string, ports.CommentLimits) ([]domain.RawComment, error) {
	return nil, nil
}

func fingerprint(v string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(v))
	return h.Sum64()
}
