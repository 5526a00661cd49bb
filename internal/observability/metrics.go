package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hotspot"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	EventsConsumed  prometheus.Counter
	EventsIngested  prometheus.Counter
	InvalidEvents   prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Aggregation metrics.
	Cells            prometheus.Gauge
	SnapshotRebuilds prometheus.Counter

	// Danger-zone source metrics.
	ZoneFetches       *prometheus.CounterVec // labels: outcome={success,error}
	ZoneFetchDuration prometheus.Histogram
	Zones             prometheus.Gauge

	// View metrics.
	FocusTransitions *prometheus.CounterVec // labels: reason={initial,fallback,user}
	ViewsPublished   prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeEnabled  prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.EventsConsumed,
		m.EventsIngested,
		m.InvalidEvents,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.Cells,
		m.SnapshotRebuilds,
		m.ZoneFetches,
		m.ZoneFetchDuration,
		m.Zones,
		m.FocusTransitions,
		m.ViewsPublished,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		EventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Total incident messages read from the source topic.",
		}),
		EventsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Total incidents aggregated into a cell.",
		}),
		InvalidEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_events_total",
			Help:      "Total incidents dropped for malformed payloads or non-finite coordinates.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the ingestion pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		Cells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cells",
			Help:      "Number of distinct spatial cells holding at least one incident.",
		}),
		SnapshotRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_rebuilds_total",
			Help:      "Times the ranked hotspot snapshot was recomputed instead of served from cache.",
		}),
		ZoneFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zone_fetch_total",
			Help:      "Danger-zone fetches by outcome.",
		}, []string{"outcome"}),
		ZoneFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "zone_fetch_duration_seconds",
			Help:      "Danger-zone fetch duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		Zones: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "zones",
			Help:      "Danger zones in the last good snapshot.",
		}),
		FocusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "focus_transitions_total",
			Help:      "Focus changes by reason.",
		}, []string{"reason"}),
		ViewsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "views_published_total",
			Help:      "View models written to the sink topic.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Reverse geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when focus geocoding is enabled, 0 otherwise.",
		}),
	}
}
