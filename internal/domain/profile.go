package domain

import (
	"fmt"
	"strings"
)

// Dimension names one of the pattern-scored sub-scores.
type Dimension string

const (
	DimensionUrgency   Dimension = "urgency"
	DimensionBudget    Dimension = "budget"
	DimensionAuthority Dimension = "authority"
	DimensionQuality   Dimension = "quality"
)

// Dimensions lists the pattern-scored sub-scores in evaluation order.
var Dimensions = []Dimension{DimensionUrgency, DimensionBudget, DimensionAuthority, DimensionQuality}

// Pattern is one labelled entry of a pattern table. Any of the phrases
// matching awards the points once.
type Pattern struct {
	Label   string   `yaml:"label" json:"label"`
	Phrases []string `yaml:"phrases" json:"phrases"`
	Points  float64  `yaml:"points" json:"points"`
}

// PatternTables groups the per-dimension tables of a service profile.
type PatternTables struct {
	Urgency   []Pattern `yaml:"urgency" json:"urgency"`
	Budget    []Pattern `yaml:"budget" json:"budget"`
	Authority []Pattern `yaml:"authority" json:"authority"`
	Quality   []Pattern `yaml:"quality" json:"quality"`
}

// For returns the table for a dimension.
func (p PatternTables) For(d Dimension) []Pattern {
	switch d {
	case DimensionUrgency:
		return p.Urgency
	case DimensionBudget:
		return p.Budget
	case DimensionAuthority:
		return p.Authority
	case DimensionQuality:
		return p.Quality
	default:
		return nil
	}
}

// Caps bounds the raw points of each sub-score.
type Caps struct {
	Urgency   float64 `yaml:"urgency" json:"urgency"`
	Budget    float64 `yaml:"budget" json:"budget"`
	Authority float64 `yaml:"authority" json:"authority"`
	Quality   float64 `yaml:"quality" json:"quality"`
	Context   float64 `yaml:"context" json:"context"`
}

// DefaultCaps are used when a profile leaves caps unset.
func DefaultCaps() Caps {
	return Caps{Urgency: 20, Budget: 30, Authority: 25, Quality: 15, Context: 10}
}

// For returns the cap of a pattern dimension.
func (c Caps) For(d Dimension) float64 {
	switch d {
	case DimensionUrgency:
		return c.Urgency
	case DimensionBudget:
		return c.Budget
	case DimensionAuthority:
		return c.Authority
	case DimensionQuality:
		return c.Quality
	default:
		return 0
	}
}

// UrgencyMultiplier boosts the composite when a timeline phrase matches.
type UrgencyMultiplier struct {
	Phrases []string `yaml:"phrases" json:"phrases"`
	Factor  float64  `yaml:"factor" json:"factor"`
}

// BudgetMultiplier boosts the composite when a stated amount reaches MinAmount.
type BudgetMultiplier struct {
	MinAmount float64 `yaml:"min_amount" json:"min_amount"`
	Factor    float64 `yaml:"factor" json:"factor"`
}

// ServiceProfile is the immutable, validated configuration of one service type.
type ServiceProfile struct {
	Type                   string              `yaml:"type" json:"type"`
	Partitions             []string            `yaml:"partitions" json:"partitions"`
	SearchTerms            []string            `yaml:"search_terms" json:"search_terms"`
	Patterns               PatternTables       `yaml:"patterns" json:"patterns"`
	Caps                   Caps                `yaml:"caps" json:"caps"`
	QualificationThreshold float64             `yaml:"qualification_threshold" json:"qualification_threshold"`
	UrgencyMultipliers     []UrgencyMultiplier `yaml:"urgency_multipliers" json:"urgency_multipliers"`
	BudgetMultipliers      []BudgetMultiplier  `yaml:"budget_multipliers" json:"budget_multipliers"`
	RequireNeedPhrasing    bool                `yaml:"require_need_phrasing" json:"require_need_phrasing"`
}

// Validate performs the semantic checks that a schema cannot express.
func (p ServiceProfile) Validate() error {
	if strings.TrimSpace(p.Type) == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidProfile)
	}
	if len(p.Partitions) == 0 {
		return fmt.Errorf("%w: %s has no partitions", ErrInvalidProfile, p.Type)
	}
	if len(p.SearchTerms) == 0 {
		return fmt.Errorf("%w: %s has no search terms", ErrInvalidProfile, p.Type)
	}
	if p.QualificationThreshold < 0 || p.QualificationThreshold > 100 {
		return fmt.Errorf("%w: %s threshold %.1f outside [0,100]", ErrInvalidProfile, p.Type, p.QualificationThreshold)
	}
	caps := map[string]float64{
		"urgency":   p.Caps.Urgency,
		"budget":    p.Caps.Budget,
		"authority": p.Caps.Authority,
		"quality":   p.Caps.Quality,
		"context":   p.Caps.Context,
	}
	for name, v := range caps {
		if v <= 0 {
			return fmt.Errorf("%w: %s cap %s must be positive", ErrInvalidProfile, p.Type, name)
		}
	}
	for _, d := range Dimensions {
		table := p.Patterns.For(d)
		if len(table) == 0 {
			return fmt.Errorf("%w: %s has an empty %s table", ErrInvalidProfile, p.Type, d)
		}
		seen := make(map[string]struct{}, len(table))
		for _, entry := range table {
			if entry.Label == "" || len(entry.Phrases) == 0 {
				return fmt.Errorf("%w: %s %s entry needs a label and phrases", ErrInvalidProfile, p.Type, d)
			}
			if _, dup := seen[entry.Label]; dup {
				return fmt.Errorf("%w: %s %s label %q repeated", ErrInvalidProfile, p.Type, d, entry.Label)
			}
			seen[entry.Label] = struct{}{}
			if entry.Points <= 0 {
				return fmt.Errorf("%w: %s %s label %q needs positive points", ErrInvalidProfile, p.Type, d, entry.Label)
			}
		}
	}
	for _, m := range p.UrgencyMultipliers {
		if m.Factor < 1 || len(m.Phrases) == 0 {
			return fmt.Errorf("%w: %s urgency multiplier must have phrases and factor >= 1", ErrInvalidProfile, p.Type)
		}
	}
	for _, m := range p.BudgetMultipliers {
		if m.Factor < 1 || m.MinAmount <= 0 {
			return fmt.Errorf("%w: %s budget multiplier must have min_amount > 0 and factor >= 1", ErrInvalidProfile, p.Type)
		}
	}
	return nil
}
