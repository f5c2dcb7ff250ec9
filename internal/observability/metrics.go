package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tsunami_playback"

// Metrics holds the Prometheus counters, histograms, and gauges for the playback service.
type Metrics struct {
	// Playback clock metrics.
	Ticks           prometheus.Counter
	SimMinutes      prometheus.Gauge
	Playing         prometheus.Gauge
	SpeedMultiplier prometheus.Gauge
	Subscribers     prometheus.Gauge

	// Station monitor metrics.
	Classifications   *prometheus.CounterVec // labels: level={normal,medium,high,critical}
	AlertingStations  prometheus.Gauge
	StatusChanges     prometheus.Counter
	StatusDrops       prometheus.Counter
	StationsMonitored prometheus.Gauge

	// Status publishing metrics.
	StatusesPublished prometheus.Counter
	PublishErrors     prometheus.Counter
	PublishBatchSize  prometheus.Histogram

	// Dashboard websocket metrics.
	WebsocketClients prometheus.Gauge
	WebsocketDrops   prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// NewUnregisteredMetrics creates Metrics that are never exposed, for offline
// tools that reuse instrumented components.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total playback clock ticks processed.",
		}),
		SimMinutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sim_minutes",
			Help:      "Current simulated minutes since the selected event.",
		}),
		Playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playing",
			Help:      "1 while the playback clock is running, 0 otherwise.",
		}),
		SpeedMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "speed_multiplier",
			Help:      "Current playback speed multiplier.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Number of attached playback subscribers.",
		}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Station severity classifications by resulting level.",
		}, []string{"level"}),
		AlertingStations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerting_stations",
			Help:      "Stations currently classified above normal.",
		}),
		StatusChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_changes_total",
			Help:      "Station severity level changes.",
		}),
		StatusDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_drops_total",
			Help:      "Status changes dropped because the publish queue was full.",
		}),
		StationsMonitored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stations_monitored",
			Help:      "Stations in the active catalog.",
		}),
		StatusesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statuses_published_total",
			Help:      "Station statuses written to the sink.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed status batch writes.",
		}),
		PublishBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_batch_size",
			Help:      "Number of statuses per published batch.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		WebsocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected dashboard websocket clients.",
		}),
		WebsocketDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_drops_total",
			Help:      "Dashboard clients disconnected for falling behind.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Ticks,
		m.SimMinutes,
		m.Playing,
		m.SpeedMultiplier,
		m.Subscribers,
		m.Classifications,
		m.AlertingStations,
		m.StatusChanges,
		m.StatusDrops,
		m.StationsMonitored,
		m.StatusesPublished,
		m.PublishErrors,
		m.PublishBatchSize,
		m.WebsocketClients,
		m.WebsocketDrops,
		m.GeocodeRequests,
		m.GeocodeCache,
	}
}
