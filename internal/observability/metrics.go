package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/florianilch/dropbox-token-relay/internal/refresh"
)

const metricsNamespace = "dboxrelay"

// Metrics records refresh cycle outcomes in a dedicated Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	duration      prometheus.Histogram
	lastSuccess   prometheus.Gauge
	lastRun       prometheus.Gauge
	notifications *prometheus.CounterVec
}

// Compile-time check that Metrics implements refresh.Recorder.
var _ refresh.Recorder = (*Metrics)(nil)

// NewMetrics creates and registers the refresh metrics plus Go runtime collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "refresh_runs_total",
			Help:      "Refresh cycles by outcome and failure kind.",
		}, []string{"outcome", "kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of refresh cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "refresh_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "refresh_last_run_timestamp_seconds",
			Help:      "Unix time of the last finished refresh cycle.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.runs,
		m.duration,
		m.lastSuccess,
		m.lastRun,
		m.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordRun implements refresh.Recorder.
func (m *Metrics) RecordRun(result refresh.Result) {
	m.runs.WithLabelValues(result.Outcome.String(), result.Kind().String()).Inc()
	m.duration.Observe(result.Duration().Seconds())
	m.lastRun.Set(float64(result.FinishedAt.Unix()))
	if result.Outcome == refresh.Succeeded {
		m.lastSuccess.Set(float64(result.FinishedAt.Unix()))
	}
}

// RecordNotification implements refresh.Recorder.
func (m *Metrics) RecordNotification(err error) {
	label := "sent"
	if err != nil {
		label = "failed"
	}
	m.notifications.WithLabelValues(label).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
