package exclusion

import (
	"context"
	"fmt"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
)

// Loader is the read side of the exclusion store.
type Loader interface {
	LoadAll(ctx context.Context) (map[string]struct{}, error)
}

// Set is an immutable snapshot of excluded identifiers.
type Set struct {
	ids map[string]struct{}
}

// NewSet copies ids into a snapshot.
func NewSet(ids ...string) Set {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return Set{ids: m}
}

// Load snapshots the store once for a run.
func Load(ctx context.Context, store Loader) (Set, error) {
	if store == nil {
		return NewSet(), nil
	}
	ids, err := store.LoadAll(ctx)
	if err != nil {
		return Set{}, fmt.Errorf("load exclusions: %w", err)
	}
	m := make(map[string]struct{}, len(ids))
	for id := range ids {
		m[id] = struct{}{}
	}
	return Set{ids: m}, nil
}

// Contains reports membership in O(1).
func (s Set) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of identifiers.
func (s Set) Len() int {
	return len(s.ids)
}

// Result is the outcome of filtering.
type Result struct {
	Kept     []domain.ScoredItem
	Excluded int
	Total    int
}

// Rate is excluded/total, zero when nothing was filtered.
func (r Result) Rate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Excluded) / float64(r.Total)
}

// Filter drops items whose identifier is in the set. Only the identifier is
// compared; authors and content are ignored.
func Filter(items []domain.ScoredItem, set Set) Result {
	res := Result{Kept: make([]domain.ScoredItem, 0, len(items)), Total: len(items)}
	for _, item := range items {
		if set.Contains(item.ID()) {
			res.Excluded++
			continue
		}
		res.Kept = append(res.Kept, item)
	}
	return res
}
