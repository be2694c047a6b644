package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "repeater_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the normalization pipeline.
type Metrics struct {
	RecordsIn       prometheus.Counter
	RecordsOut      prometheus.Counter
	RecordsRejected *prometheus.CounterVec // labels: reason={country,status,state,city,other}
	PipelineRunning prometheus.Gauge
	States          prometheus.Gauge

	RunDuration prometheus.Histogram
	RunsTotal   *prometheus.CounterVec // labels: outcome={success,error}

	// City matching metrics.
	CityMatches   *prometheus.CounterVec // labels: strategy, result={hit,miss}
	CityIndexSize prometheus.Gauge
	CityIndexLoad *prometheus.CounterVec // labels: source={store,remote}, outcome={success,error}

	// Source loader metrics.
	SourceFetches *prometheus.CounterVec // labels: kind={file,http}, outcome={success,error,invalid}
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_in_total",
			Help:      "Raw repeater records read from the dataset.",
		}),
		RecordsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_out_total",
			Help:      "Normalized records written to a state group.",
		}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Raw records dropped by rejection reason.",
		}, []string{"reason"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a batch run is in progress.",
		}),
		States: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "states",
			Help:      "State groups produced by the last run.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete load-normalize-save run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Batch runs by outcome.",
		}, []string{"outcome"}),
		CityMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "city_matches_total",
			Help:      "City lookups by winning strategy and memo result.",
		}, []string{"strategy", "result"}),
		CityIndexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "city_index_size",
			Help:      "Entries in the loaded city name index.",
		}),
		CityIndexLoad: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "city_index_loads_total",
			Help:      "City index loads by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Dataset source attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsIn,
		m.RecordsOut,
		m.RecordsRejected,
		m.PipelineRunning,
		m.States,
		m.RunDuration,
		m.RunsTotal,
		m.CityMatches,
		m.CityIndexSize,
		m.CityIndexLoad,
		m.SourceFetches,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
