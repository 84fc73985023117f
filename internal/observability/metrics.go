// Package observability centralises logging, metrics, and error-reporting
// construction for both the scheduler daemon and the admin CLI.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion fabric.
type Metrics struct {
	// Ingestion engine.
	StationsSaved      prometheus.Counter
	MeasuresInserted   prometheus.Counter
	MeasuresDuplicate  prometheus.Counter
	EngineErrors       *prometheus.CounterVec // labels: op={save_station,create_measure,insert_measures}, kind={invalid_input,timeout,usage_limit,upstream_error,transient_storage}
	EngineOpDuration   *prometheus.HistogramVec
	PressureDerivation prometheus.Counter

	// Geocode/elevation/timezone enrichment.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={reverse_geocode,elevation,timezone}, outcome={ok,usage_limit,upstream_error,timeout}
	GeocodeCache       *prometheus.CounterVec   // labels: method, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method
	CircuitBreakerOpen *prometheus.GaugeVec     // labels: method

	// Cache.
	CacheHits   *prometheus.CounterVec // labels: outcome={success,usage_limit,error}
	CacheMisses prometheus.Counter

	// Scheduler.
	JobsRun      *prometheus.CounterVec // labels: job, result={success,fail,misfire}
	JobDuration  *prometheus.HistogramVec
	JobsRegistered prometheus.Gauge

	// Admin jobs.
	AdminJobDuration *prometheus.HistogramVec // labels: job={prune,clusters,duplicates}
	StationsPruned   prometheus.Counter
	ClustersAssigned *prometheus.GaugeVec // labels: level
	DuplicateGroups  prometheus.Gauge
}

const namespace = "windstation"

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(collectorsOf(m)...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them with any
// registry, to avoid "already registered" panics when called from
// multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		StationsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stations_saved_total",
			Help: "Total stations upserted via save_station.",
		}),
		MeasuresInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "measures_inserted_total",
			Help: "Total measurement documents inserted.",
		}),
		MeasuresDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "measures_duplicate_total",
			Help: "Total measurement inserts dropped as duplicates.",
		}),
		EngineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "engine_errors_total",
			Help: "Engine operation failures by operation and error kind.",
		}, []string{"op", "kind"}),
		EngineOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "engine_op_duration_seconds",
			Help:    "Duration of engine operations.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}, []string{"op"}),
		PressureDerivation: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pressure_derivations_total",
			Help: "Total pressure triplets with at least one derived leg.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "geocode_requests_total",
			Help: "Enrichment API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "geocode_cache_total",
			Help: "Enrichment cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "geocode_api_duration_seconds",
			Help:    "Google enrichment API request duration in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		CircuitBreakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_open",
			Help: "1 when the enrichment circuit breaker is open for this method.",
		}, []string{"method"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total",
			Help: "Cache hits by stored outcome.",
		}, []string{"outcome"}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total",
			Help: "Total cache misses.",
		}),
		JobsRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_run_total",
			Help: "Scheduled job executions by job name and result.",
		}, []string{"job", "result"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "job_duration_seconds",
			Help:    "Duration of scheduled job executions.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"job"}),
		JobsRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "jobs_registered",
			Help: "Number of jobs currently registered with the scheduler.",
		}),
		AdminJobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "admin_job_duration_seconds",
			Help:    "Duration of admin job runs.",
			Buckets: []float64{0.1, 1, 5, 30, 60, 300, 900},
		}, []string{"job"}),
		StationsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stations_pruned_total",
			Help: "Total stations deleted by the prune job.",
		}),
		ClustersAssigned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "clusters_assigned",
			Help: "Number of stations carrying each cluster level after save_clusters.",
		}, []string{"level"}),
		DuplicateGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "duplicate_groups",
			Help: "Number of duplicate groups found by the last find_duplicates run.",
		}),
	}
}

func collectorsOf(m *Metrics) []prometheus.Collector {
	return []prometheus.Collector{
		m.StationsSaved, m.MeasuresInserted, m.MeasuresDuplicate,
		m.EngineErrors, m.EngineOpDuration, m.PressureDerivation,
		m.GeocodeRequests, m.GeocodeCache, m.GeocodeAPIDuration, m.CircuitBreakerOpen,
		m.CacheHits, m.CacheMisses,
		m.JobsRun, m.JobDuration, m.JobsRegistered,
		m.AdminJobDuration, m.StationsPruned, m.ClustersAssigned, m.DuplicateGroups,
	}
}
