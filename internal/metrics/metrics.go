package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the catalog's Prometheus metrics. The kind label is either
// "product" or "content".
type Metrics struct {
	// Mapping metrics
	MappingsCreated     *prometheus.CounterVec
	MappingsRemoved     *prometheus.CounterVec
	ReferencesRewritten *prometheus.CounterVec

	// Reclaim metrics
	OrphansReclaimed *prometheus.CounterVec
	OrphansSpared    *prometheus.CounterVec

	// Traversal metrics
	TraversalDuration *prometheus.HistogramVec
	ActiveProducts    prometheus.Histogram

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MappingsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_mappings_created_total",
				Help: "Owner mappings created",
			},
			[]string{"kind"},
		),

		MappingsRemoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_mappings_removed_total",
				Help: "Owner mappings removed",
			},
			[]string{"kind"},
		),

		ReferencesRewritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_references_rewritten_total",
				Help: "Old to new version pairs applied by the reference rewriter",
			},
			[]string{"kind"},
		),

		OrphansReclaimed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_orphans_reclaimed_total",
				Help: "Unreferenced versions deleted",
			},
			[]string{"kind"},
		),

		OrphansSpared: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_orphans_spared_total",
				Help: "Orphan candidates found referenced again at delete time",
			},
			[]string{"kind"},
		),

		TraversalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_traversal_duration_seconds",
				Help:    "Duration of active product graph traversals",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),

		ActiveProducts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_active_products",
				Help:    "Size of computed active product sets",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_cache_hits_total",
				Help: "Resolution cache hits",
			},
			[]string{"kind"},
		),

		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_cache_misses_total",
				Help: "Resolution cache misses",
			},
			[]string{"kind"},
		),
	}
}

// NewNopMetrics returns metrics registered with a throwaway registry.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
