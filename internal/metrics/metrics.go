package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
)

const namespace = "prospect_scanner"

var (
	itemsFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_fetched_total",
			Help:      "Raw items harvested from the source, by service type.",
		},
		[]string{"service_type"},
	)
	malformedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_malformed_total",
			Help:      "Items discarded because they lacked an identifier or text.",
		},
		[]string{"service_type"},
	)
	prefilterRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prefilter",
			Name:      "rejected_total",
			Help:      "Items rejected by the pre-filter, by reason.",
		},
		[]string{"service_type", "reason"},
	)
	partitionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partition_failures_total",
			Help:      "Partitions dropped, cut short or served by the fallback source.",
		},
		[]string{"service_type", "kind"},
	)
	discoveredPartitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovered_partitions_total",
			Help:      "Partitions added to runs by community discovery.",
		},
		[]string{"service_type"},
	)
	exclusionStoreUnavailableTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exclusion_store_unavailable_total",
			Help:      "Runs that proceeded without reading the exclusion store.",
		},
		[]string{"service_type"},
	)
	excludedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_excluded_total",
			Help:      "Scored items removed as already processed.",
		},
		[]string{"service_type"},
	)
	enrichmentCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "calls_total",
			Help:      "Enrichment decisions by outcome.",
		},
		[]string{"service_type", "outcome"},
	)
	prospectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prospects_total",
			Help:      "Scored prospects by tier.",
		},
		[]string{"service_type", "tier"},
	)
	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a qualification run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"service_type", "cancelled"},
	)
)

// ObserveRun records the statistics of a finished run.
func ObserveRun(stats domain.RunStats) {
	st := stats.ServiceType

	itemsFetchedTotal.WithLabelValues(st).Add(float64(stats.TotalFetched))
	malformedTotal.WithLabelValues(st).Add(float64(stats.Malformed))
	for reason, n := range stats.PreFilterReasons {
		prefilterRejectedTotal.WithLabelValues(st, reason).Add(float64(n))
	}
	partitionFailuresTotal.WithLabelValues(st, "failed").Add(float64(len(stats.FailedPartitions)))
	partitionFailuresTotal.WithLabelValues(st, "partial").Add(float64(len(stats.PartialPartitions)))
	partitionFailuresTotal.WithLabelValues(st, "degraded").Add(float64(len(stats.DegradedPartitions)))
	discoveredPartitionsTotal.WithLabelValues(st).Add(float64(len(stats.DiscoveredPartitions)))
	if stats.ExclusionsUnavailable {
		exclusionStoreUnavailableTotal.WithLabelValues(st).Inc()
	}
	excludedTotal.WithLabelValues(st).Add(float64(stats.ExcludedAsDuplicate))

	enrichmentCallsTotal.WithLabelValues(st, "succeeded").Add(float64(stats.EnrichmentCallsUsed - stats.EnrichmentFailures))
	enrichmentCallsTotal.WithLabelValues(st, "failed").Add(float64(stats.EnrichmentFailures))
	enrichmentCallsTotal.WithLabelValues(st, "skipped").Add(float64(stats.EnrichmentSkipped))
	enrichmentCallsTotal.WithLabelValues(st, "cache_hit").Add(float64(stats.EnrichmentCacheHits))

	for tier, n := range stats.TierCounts {
		prospectsTotal.WithLabelValues(st, string(tier)).Add(float64(n))
	}

	if !stats.FinishedAt.IsZero() {
		cancelled := "false"
		if stats.Cancelled {
			cancelled = "true"
		}
		runDuration.WithLabelValues(st, cancelled).Observe(stats.FinishedAt.Sub(stats.StartedAt).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
