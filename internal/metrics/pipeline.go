package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusrank",
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"}, // "done" / "failed" / "rejected"
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "corpusrank",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300},
		},
		[]string{"stage"},
	)

	UnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusrank",
			Name:      "pipeline_units_total",
			Help:      "Units processed per stage by status",
		},
		[]string{"stage", "status"},
	)

	SnapshotVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "corpusrank",
			Name:      "percentile_snapshot_version",
			Help:      "Version of the percentile snapshot currently served",
		},
	)

	SnapshotRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "corpusrank",
			Name:      "percentile_snapshot_records",
			Help:      "Number of (bill, metric) records in the served snapshot",
		},
	)

	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "corpusrank",
			Name:      "cache_evictions_total",
			Help:      "Derived view cache keys evicted",
		},
		[]string{"scope"}, // "ids" / "corpus"
	)

	CacheErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "corpusrank",
			Name:      "cache_errors_total",
			Help:      "Cache invalidations that failed against the backend",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(UnitsTotal)
	prometheus.MustRegister(SnapshotVersion)
	prometheus.MustRegister(SnapshotRecords)
	prometheus.MustRegister(CacheEvictionsTotal)
	prometheus.MustRegister(CacheErrorsTotal)
	pipelineMetricsRegistered = true
}
