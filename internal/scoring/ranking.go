package scoring

import (
	"cmp"
	"slices"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
)

// Compare orders scored items best first: composite, then engagement, then
// recency, then identifier.
func Compare(a, b domain.ScoredItem) int {
	if c := cmp.Compare(b.Composite, a.Composite); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Item.Engagement.Total(), a.Item.Engagement.Total()); c != 0 {
		return c
	}
	if c := b.Item.CreatedAt.Compare(a.Item.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Item.ID, b.Item.ID)
}

// Rank sorts items in place, best first.
func Rank(items []domain.ScoredItem) {
	slices.SortStableFunc(items, Compare)
}
