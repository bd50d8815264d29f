package cache

import (
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
)

const (
	DefaultDiscoverySize = 64
	DefaultDiscoveryTTL  = 7 * 24 * time.Hour
)

// DiscoveryCache keeps discovered communities per key. Callers get copies,
// so a cached list cannot be changed through a returned slice.
type DiscoveryCache struct {
	lru *expirable.LRU[string, []domain.Community]
}

var _ ports.DiscoveryCache = (*DiscoveryCache)(nil)

// NewDiscoveryCache builds a cache; non-positive arguments use the defaults.
func NewDiscoveryCache(size int, ttl time.Duration) *DiscoveryCache {
	if size <= 0 {
		size = DefaultDiscoverySize
	}
	if ttl <= 0 {
		ttl = DefaultDiscoveryTTL
	}
	return &DiscoveryCache{lru: expirable.NewLRU[string, []domain.Community](size, nil, ttl)}
}

func (c *DiscoveryCache) Get(key string) ([]domain.Community, bool) {
	communities, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return slices.Clone(communities), true
}

func (c *DiscoveryCache) Put(key string, communities []domain.Community) {
	c.lru.Add(key, slices.Clone(communities))
}
