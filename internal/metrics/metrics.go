package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds every radar collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	classifierRequests *prometheus.CounterVec
	classifierDuration *prometheus.HistogramVec
	crawlerItems       *prometheus.CounterVec
	activeSessions     prometheus.Gauge
	pipelineProcessed  *prometheus.CounterVec
}

// New registers the collectors on reg. Use prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		classifierRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_classifier_requests_total",
			Help: "Classifier calls by kind and status",
		}, []string{"kind", "status"}),

		classifierDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "radar_classifier_duration_seconds",
			Help:    "Classifier latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"kind"}),

		crawlerItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_crawler_items_total",
			Help: "Items collected by crawlers",
		}, []string{"kind"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "radar_crawler_active_sessions",
			Help: "Live crawl sessions running in this process",
		}),

		pipelineProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_pipeline_processed_total",
			Help: "Raw posts handled by the pipeline",
		}, []string{"status"}),
	}
}

func (m *Metrics) ObserveClassification(kind string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.classifierRequests.WithLabelValues(kind, statusOf(err)).Inc()
	m.classifierDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func (m *Metrics) AddCrawlerItems(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.crawlerItems.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) PipelineProcessed(err error) {
	if m == nil {
		return
	}
	m.pipelineProcessed.WithLabelValues(statusOf(err)).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
