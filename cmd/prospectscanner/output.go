package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/infrastructure/storage"
	"github.com/The-Juice-Real/redgenv2/internal/profile"
)

type prospectView struct {
	ID         string                `json:"id"`
	Partition  string                `json:"partition"`
	Title      string                `json:"title"`
	URL        string                `json:"url"`
	Composite  float64               `json:"composite"`
	LocalScore float64               `json:"local_score"`
	Tier       domain.Tier           `json:"tier"`
	Escalation domain.EscalationState `json:"escalation"`
	Indicators []string              `json:"indicators"`
}

func printRun(w io.Writer, format string, result domain.RunResult, limit int) error {
	prospects := result.Prospects
	if limit > 0 && len(prospects) > limit {
		prospects = prospects[:limit]
	}

	views := make([]prospectView, 0, len(prospects))
	for _, p := range prospects {
		views = append(views, prospectView{
			ID:         p.ID(),
			Partition:  p.Item.Partition,
			Title:      p.Item.Title,
			URL:        p.Item.URL,
			Composite:  p.Composite,
			LocalScore: p.LocalScore,
			Tier:       p.Tier,
			Escalation: p.Escalation,
			Indicators: p.Indicators,
		})
	}

	if format == "json" {
		return writeJSON(w, map[string]any{"prospects": views, "stats": result.Stats})
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tSCORE\tPARTITION\tID\tTITLE")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%.1f\t%s\t%s\t%s\n", v.Tier, v.Composite, v.Partition, v.ID, truncate(v.Title, 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := result.Stats
	fmt.Fprintf(w, "\nrun %s (%s) in %s\n", s.RunID, s.ServiceType, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "fetched %d, malformed %d, prefilter rejected %d, scored %d\n",
		s.TotalFetched, s.Malformed, s.PreFilterRejected, s.Scored)
	fmt.Fprintf(w, "excluded %d (%.1f%%), enrichment calls %d, failures %d, skipped %d, cache hits %d\n",
		s.ExcludedAsDuplicate, s.ExclusionRate*100, s.EnrichmentCallsUsed, s.EnrichmentFailures, s.EnrichmentSkipped, s.EnrichmentCacheHits)
	fmt.Fprintf(w, "tiers: platinum %d, gold %d, silver %d, rejected %d\n",
		s.TierCounts[domain.TierPlatinum], s.TierCounts[domain.TierGold], s.TierCounts[domain.TierSilver], s.TierCounts[domain.TierRejected])
	if len(s.DiscoveredPartitions) > 0 {
		fmt.Fprintf(w, "discovered partitions: %s\n", strings.Join(s.DiscoveredPartitions, ", "))
	}
	if s.ExclusionsUnavailable {
		fmt.Fprintln(w, "exclusion store unavailable; previously processed items were not filtered")
	}
	if len(s.FailedPartitions) > 0 {
		fmt.Fprintf(w, "failed partitions: %s\n", strings.Join(s.FailedPartitions, ", "))
	}
	if len(s.PartialPartitions) > 0 {
		fmt.Fprintf(w, "partial partitions: %s\n", strings.Join(s.PartialPartitions, ", "))
	}
	if len(s.DegradedPartitions) > 0 {
		fmt.Fprintf(w, "degraded partitions: %s\n", strings.Join(s.DegradedPartitions, ", "))
	}
	if s.Cancelled {
		fmt.Fprintln(w, "run was cancelled; results are partial")
	}
	return nil
}

func printExclusions(w io.Writer, format string, entries []storage.Exclusion) error {
	if format == "json" {
		type view struct {
			ItemID  string    `json:"item_id"`
			AddedAt time.Time `json:"added_at"`
		}
		views := make([]view, 0, len(entries))
		for _, e := range entries {
			views = append(views, view{ItemID: e.ItemID, AddedAt: e.AddedAt})
		}
		return writeJSON(w, views)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tADDED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\n", e.ItemID, e.AddedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func printProfiles(w io.Writer, format string, catalog *profile.Catalog) error {
	type view struct {
		Type       string   `json:"type"`
		Threshold  float64  `json:"qualification_threshold"`
		Partitions []string `json:"partitions"`
		Terms      []string `json:"search_terms"`
	}

	var views []view
	for _, t := range catalog.Types() {
		p, err := catalog.Get(t)
		if err != nil {
			return err
		}
		views = append(views, view{Type: p.Type, Threshold: p.QualificationThreshold, Partitions: p.Partitions, Terms: p.SearchTerms})
	}

	if format == "json" {
		return writeJSON(w, views)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tTHRESHOLD\tPARTITIONS")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%.0f\t%s\n", v.Type, v.Threshold, strings.Join(v.Partitions, ","))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
