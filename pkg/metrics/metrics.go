// Package metrics exposes the Prometheus collectors for notesd, following
// the teacher's pattern of package-level collectors registered in init()
// and a Timer helper for histogram observations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Daemon loop
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notesd_cycle_duration_seconds",
			Help:    "Time taken for one daemon API sync cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesd_cycles_total",
			Help: "Total number of daemon cycles by outcome",
		},
		[]string{"outcome"}, // "success" | "failure"
	)

	ConsecutiveErrors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notesd_consecutive_errors",
			Help: "Current consecutive-error count observed by the circuit breaker",
		},
	)

	BreakerOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notesd_breaker_open",
			Help: "Whether the daemon's circuit breaker is open (1) or closed (0)",
		},
	)

	WatermarkLagSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notesd_watermark_lag_seconds",
			Help: "Seconds between now and the stored watermark timestamp",
		},
	)

	// Ingestion pipeline
	NotesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesd_notes_ingested_total",
			Help: "Total notes fetched for ingestion, by source",
		},
		[]string{"source"}, // "api" | "planet_escalation"
	)

	CommentsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notesd_comments_ingested_total",
			Help: "Total comments upserted into main tables",
		},
	)

	LoaderPartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notesd_loader_part_duration_seconds",
			Help:    "Time taken to bulk-load one part file into its staging partition",
			Buckets: prometheus.DefBuckets,
		},
	)

	ConsolidationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notesd_consolidation_duration_seconds",
			Help:    "Time taken for one Consolidator pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	GapRecordsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notesd_gap_records_total",
			Help: "Notes created in the last 7 days with zero comments, as of the last Consolidator pass",
		},
	)

	// Boundary manager
	BoundaryRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notesd_boundary_refresh_duration_seconds",
			Help:    "Time taken for one boundary import + re-geotag pass",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
		},
	)

	BoundariesChanged = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notesd_boundaries_changed",
			Help: "Number of country/maritime boundaries added or changed in the last refresh",
		},
	)

	BoundaryUpdateFailed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notesd_boundary_update_failed",
			Help: "Number of countries left with update_failed=true after the last refresh",
		},
	)

	NotesRegeotagged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notesd_notes_regeotagged_total",
			Help: "Total notes whose country assignment changed due to a boundary refresh",
		},
	)

	// External collaborators
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesd_http_requests_total",
			Help: "Total HTTP requests to external collaborators by target and status",
		},
		[]string{"target", "status"}, // target: "osm_api" | "planet" | "overpass"
	)
)

func init() {
	prometheus.MustRegister(
		CycleDuration,
		CyclesTotal,
		ConsecutiveErrors,
		BreakerOpen,
		WatermarkLagSeconds,
		NotesIngestedTotal,
		CommentsIngestedTotal,
		LoaderPartDuration,
		ConsolidationDuration,
		GapRecordsTotal,
		BoundaryRefreshDuration,
		BoundariesChanged,
		BoundaryUpdateFailed,
		NotesRegeotagged,
		HTTPRequestsTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations; pkg/consolidator uses it around
// each DeduplicateAndUpsert call.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
