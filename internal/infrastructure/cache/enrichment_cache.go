package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
)

const (
	DefaultSize = 1024
	DefaultTTL  = 24 * time.Hour
)

// EnrichmentCache keeps enrichment results for a fixed TTL. Entries expire
// after TTL and the least recently used entry is evicted once Size is reached.
type EnrichmentCache struct {
	lru *expirable.LRU[string, domain.EnrichedResult]
}

var _ ports.EnrichmentCache = (*EnrichmentCache)(nil)

// NewEnrichmentCache builds a cache; non-positive arguments use the defaults.
func NewEnrichmentCache(size int, ttl time.Duration) *EnrichmentCache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &EnrichmentCache{lru: expirable.NewLRU[string, domain.EnrichedResult](size, nil, ttl)}
}

func (c *EnrichmentCache) Get(itemID string) (domain.EnrichedResult, bool) {
	return c.lru.Get(itemID)
}

func (c *EnrichmentCache) Put(itemID string, result domain.EnrichedResult) {
	c.lru.Add(itemID, result)
}

// Len reports the number of live entries.
func (c *EnrichmentCache) Len() int {
	return c.lru.Len()
}
