package domain

import "time"

// RunStats is always returned by a run, even when nothing qualified.
type RunStats struct {
	RunID       string    `json:"run_id"`
	ServiceType string    `json:"service_type"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	PartitionsSearched int      `json:"partitions_searched"`
	FailedPartitions   []string `json:"failed_partitions"`
	PartialPartitions  []string `json:"partial_partitions"`
	DegradedPartitions []string `json:"degraded_partitions"`

	// DiscoveredPartitions were added to the profile list for this run.
	DiscoveredPartitions []string `json:"discovered_partitions"`

	TotalFetched      int            `json:"total_fetched"`
	Malformed         int            `json:"malformed"`
	PreFilterRejected int            `json:"prefilter_rejected"`
	PreFilterReasons  map[string]int `json:"prefilter_reasons"`
	Scored            int            `json:"scored"`

	ExcludedAsDuplicate int     `json:"excluded_as_duplicate"`
	ExclusionRate       float64 `json:"exclusion_rate"`

	// ExclusionsUnavailable is set when the store could not be read and
	// the run went ahead without an exclusion snapshot.
	ExclusionsUnavailable bool `json:"exclusions_unavailable"`

	EnrichmentCandidates int `json:"enrichment_candidates"`
	EnrichmentCallsUsed  int `json:"enrichment_calls_used"`
	EnrichmentFailures   int `json:"enrichment_failures"`
	EnrichmentSkipped    int `json:"enrichment_skipped"`
	EnrichmentCacheHits  int `json:"enrichment_cache_hits"`

	TierCounts map[Tier]int `json:"tier_counts"`
	Cancelled  bool         `json:"cancelled"`
}

// NewRunStats returns stats with every map initialised.
func NewRunStats(runID, serviceType string, startedAt time.Time) RunStats {
	return RunStats{
		RunID:                runID,
		ServiceType:          serviceType,
		StartedAt:            startedAt,
		FailedPartitions:     []string{},
		PartialPartitions:    []string{},
		DegradedPartitions:   []string{},
		DiscoveredPartitions: []string{},
		PreFilterReasons:     map[string]int{},
		TierCounts: map[Tier]int{
			TierPlatinum: 0,
			TierGold:     0,
			TierSilver:   0,
			TierRejected: 0,
		},
	}
}

// RunResult is the output of one pipeline run, ordered by composite descending.
type RunResult struct {
	Prospects []ScoredItem
	Stats     RunStats
}

// RunRecord is the persisted summary of a run.
type RunRecord struct {
	RunID       string
	ServiceType string
	StartedAt   time.Time
	FinishedAt  time.Time
	StatsJSON   []byte
	Fingerprint string
}
