package fetcher

import (
	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
)

// PruneComments enforces the comment limits on a flat, parent-before-child
// comment list. Top-level comments have depth 1 and a parent equal to the
// item identifier (or empty). A comment is dropped when it exceeds the depth
// cap, when its depth does not follow its parent, or when its parent was
// dropped.
func PruneComments(itemID string, comments []domain.RawComment, limits ports.CommentLimits) []domain.RawComment {
	if len(comments) == 0 {
		return nil
	}

	depthOf := make(map[string]int, len(comments))
	replies := make(map[string]int)
	top := 0
	kept := make([]domain.RawComment, 0, len(comments))

	for _, c := range comments {
		if c.ID == "" || c.Depth > limits.MaxDepth {
			continue
		}
		if c.ParentID == "" || c.ParentID == itemID {
			if c.Depth != 1 || top >= limits.MaxTop {
				continue
			}
			top++
		} else {
			parentDepth, ok := depthOf[c.ParentID]
			if !ok || c.Depth != parentDepth+1 {
				continue
			}
			if replies[c.ParentID] >= limits.MaxRepliesPerComment {
				continue
			}
			replies[c.ParentID]++
		}
		depthOf[c.ID] = c.Depth
		kept = append(kept, c)
	}
	return kept
}
