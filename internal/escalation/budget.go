package escalation

import (
	"fmt"
	"sync/atomic"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
)

// DefaultBudget is the per-run enrichment call cap.
const DefaultBudget = 5

// Budget counts the enrichment calls a run may still make. TryConsume is a
// single compare-and-swap so concurrent callers can never overspend.
type Budget struct {
	limit     int64
	remaining atomic.Int64
}

// NewBudget returns a budget of limit calls. Negative limits are treated as zero.
func NewBudget(limit int) *Budget {
	b := &Budget{limit: int64(max(limit, 0))}
	b.remaining.Store(b.limit)
	return b
}

// TryConsume takes one call from the budget. It returns false once the
// budget is exhausted.
func (b *Budget) TryConsume() bool {
	for {
		cur := b.remaining.Load()
		if cur <= 0 {
			return false
		}
		if b.remaining.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Reserve is TryConsume with an error for callers that propagate it.
func (b *Budget) Reserve() error {
	if b.TryConsume() {
		return nil
	}
	return fmt.Errorf("%w: %d of %d calls used", domain.ErrBudgetExhausted, b.Used(), b.Limit())
}

// Used reports how many calls were taken.
func (b *Budget) Used() int {
	return int(b.limit - b.remaining.Load())
}

// Remaining reports how many calls are left.
func (b *Budget) Remaining() int {
	return int(b.remaining.Load())
}

// Limit is the configured cap.
func (b *Budget) Limit() int {
	return int(b.limit)
}
