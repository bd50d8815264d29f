package domain

import (
	"fmt"
	"strings"
	"time"
)

// RawComment is a single node of an item's comment tree.
type RawComment struct {
	ID       string
	ParentID string
	Depth    int
	Body     string
	Author   string
	Score    int
}

// Engagement carries the numeric counters reported by the source.
type Engagement struct {
	Score       int
	NumComments int
}

// Total is the single engagement figure used for ranking ties.
func (e Engagement) Total() int {
	return e.Score + e.NumComments
}

// RawItem is one harvested unit of content. It is not modified after fetch.
type RawItem struct {
	ID         string
	Author     string
	Partition  string
	Title      string
	Body       string
	URL        string
	CreatedAt  time.Time
	Engagement Engagement
	Comments   []RawComment
}

// Text returns title and body joined by a single space.
func (i RawItem) Text() string {
	return strings.TrimSpace(i.Title + " " + i.Body)
}

// Validate reports items that cannot be scored.
func (i RawItem) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("%w: missing identifier", ErrMalformedItem)
	}
	if i.Text() == "" {
		return fmt.Errorf("%w: item %s has no text", ErrMalformedItem, i.ID)
	}
	return nil
}

// Tier is the qualification bucket of a scored item.
type Tier string

const (
	TierPlatinum Tier = "platinum"
	TierGold     Tier = "gold"
	TierSilver   Tier = "silver"
	TierRejected Tier = "rejected"
)

const (
	PlatinumFloor = 85.0
	GoldFloor     = 70.0
)

// TierFor applies the fixed ladder on top of a service-specific threshold.
func TierFor(composite, threshold float64) Tier {
	switch {
	case composite < threshold:
		return TierRejected
	case composite >= PlatinumFloor:
		return TierPlatinum
	case composite >= GoldFloor:
		return TierGold
	default:
		return TierSilver
	}
}

// Rank orders tiers so comparisons stay readable.
func (t Tier) Rank() int {
	switch t {
	case TierPlatinum:
		return 3
	case TierGold:
		return 2
	case TierSilver:
		return 1
	default:
		return 0
	}
}

// Qualified is true for every tier except Rejected.
func (t Tier) Qualified() bool {
	return t.Rank() > 0
}

// SubScores holds the raw (cap-bounded) value of each scoring dimension.
type SubScores struct {
	Urgency   float64
	Budget    float64
	Authority float64
	Quality   float64
	Context   float64
}

// EscalationState tracks an item through the enrichment gate.
type EscalationState string

const (
	EscalationLocalOnly EscalationState = "local_only"
	EscalationPending   EscalationState = "pending_enrichment"
	EscalationEnriched  EscalationState = "enriched"
	EscalationSkipped   EscalationState = "enrichment_skipped"
)

// EnrichedResult is what the external enrichment service returns.
type EnrichedResult struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// ScoredItem is produced by the composite ranker and never mutated afterwards;
// later stages return modified copies.
type ScoredItem struct {
	Item            RawItem
	SubScores       SubScores
	EngagementBonus float64
	SemanticBonus   float64
	Penalty         float64
	Multiplier      float64
	LocalScore      float64
	Composite       float64
	Tier            Tier
	Indicators      []string
	Escalation      EscalationState
	Enrichment      *EnrichedResult
	// SkipReason is set when Escalation is EnrichmentSkipped.
	SkipReason string
}

// ID is a shortcut for the underlying item identifier.
func (s ScoredItem) ID() string {
	return s.Item.ID
}
