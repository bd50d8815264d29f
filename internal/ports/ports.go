package ports

import (
	"context"
	"time"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
)

// SearchRequest asks a source for one page of items in a partition.
type SearchRequest struct {
	Partition string
	Terms     []string
	Limit     int
	// Cursor is empty for the first page.
	Cursor string
}

// SearchPage is one page of search results. Next is empty on the last page.
type SearchPage struct {
	Items []domain.RawItem
	Next  string
}

// CommentLimits bounds the comment tree fetched for an item.
type CommentLimits struct {
	MaxTop               int
	MaxRepliesPerComment int
	MaxDepth             int
}

// DefaultCommentLimits mirrors the harvesting defaults.
func DefaultCommentLimits() CommentLimits {
	return CommentLimits{MaxTop: 25, MaxRepliesPerComment: 5, MaxDepth: 3}
}

// SourceClient talks to the text source. Implementations return
// domain.ErrRateLimited, domain.ErrNotFound or domain.ErrUnavailable.
type SourceClient interface {
	Search(ctx context.Context, req SearchRequest) (SearchPage, error)
	FetchComments(ctx context.Context, itemID string, limits CommentLimits) ([]domain.RawComment, error)
}

// CommunitySearcher finds partitions on the source. About returns
// domain.ErrNotFound for unknown names.
type CommunitySearcher interface {
	SearchCommunities(ctx context.Context, query string, limit int) ([]domain.Community, error)
	About(ctx context.Context, name string) (domain.Community, error)
}

// PartitionDiscoverer proposes partitions beyond the ones a profile lists,
// best first.
type PartitionDiscoverer interface {
	Discover(ctx context.Context, profile domain.ServiceProfile, limit int) ([]domain.Community, error)
}

// DiscoveryCache remembers discovery results per key for a bounded time.
type DiscoveryCache interface {
	Get(key string) ([]domain.Community, bool)
	Put(key string, communities []domain.Community)
}

// EnrichmentClient performs the metered external validation call.
type EnrichmentClient interface {
	Enrich(ctx context.Context, item domain.RawItem, localScore float64) (domain.EnrichedResult, error)
}

// EnrichmentCache remembers enrichment results for a bounded time.
type EnrichmentCache interface {
	Get(itemID string) (domain.EnrichedResult, bool)
	Put(itemID string, result domain.EnrichedResult)
}

// ExclusionStore holds identifiers of items already handled downstream.
type ExclusionStore interface {
	LoadAll(ctx context.Context) (map[string]struct{}, error)
	Contains(ctx context.Context, id string) (bool, error)
	Add(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
}

// ProspectRepository persists qualified prospects and run summaries.
type ProspectRepository interface {
	UpsertProspects(ctx context.Context, serviceType string, items []domain.ScoredItem) error
	SaveRun(ctx context.Context, run domain.RunRecord) error
}

// Notifier delivers a text digest to an operator channel.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
