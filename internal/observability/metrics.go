package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "location_picker"

// Metrics holds the Prometheus counters, histograms, and gauges for the picker service.
type Metrics struct {
	// Widget lifecycle and selection metrics.
	PickersMounted  prometheus.Gauge
	SelectionsTotal *prometheus.CounterVec // labels: source={default,search,click,locate}
	StaleResponses  prometheus.Counter
	LocateFailures  *prometheus.CounterVec // labels: kind={permission_denied,position_unavailable,timeout,unknown,unsupported_feature}
	SearchQueries   *prometheus.CounterVec // labels: outcome={success,error,empty}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={suggest,reverse}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={suggest,reverse}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={suggest,reverse}

	// Selection sink metrics.
	PipelineRunning     prometheus.Gauge
	SelectionsPublished prometheus.Counter
	SelectionsDropped   prometheus.Counter
	PublishErrors       prometheus.Counter
	PublishBatchSize    prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewUnregisteredMetrics creates Metrics that are not registered with any
// registry. Components fall back to it when no metrics are supplied.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

// NewMetricsForTesting creates Metrics with no registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PickersMounted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pickers_mounted",
			Help:      "Number of currently mounted picker widgets.",
		}),
		SelectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Confirmed selections reported to the host, by input source.",
		}, []string{"source"}),
		StaleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "Reverse-geocode responses discarded because a newer input superseded them.",
		}),
		LocateFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locate_failures_total",
			Help:      "Device geolocation failures by error kind.",
		}, []string{"kind"}),
		SearchQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_queries_total",
			Help:      "Autocomplete queries issued by search controls, by outcome.",
		}, []string{"outcome"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Geocoding provider request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "Whether the selection publishing pipeline is running (1 = running, 0 = stopped).",
		}),
		SelectionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_dropped_total",
			Help:      "Selection events dropped because the publish queue was full.",
		}),
		PublishBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_batch_size",
			Help:      "Number of selection events per published batch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100},
		}),
		SelectionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_published_total",
			Help:      "Selection events written to the sink topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed attempts to write a batch of selection events to the sink topic.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PickersMounted,
		m.SelectionsTotal,
		m.StaleResponses,
		m.LocateFailures,
		m.SearchQueries,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.PipelineRunning,
		m.SelectionsPublished,
		m.SelectionsDropped,
		m.PublishErrors,
		m.PublishBatchSize,
	}
}
