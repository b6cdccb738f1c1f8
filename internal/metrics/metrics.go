package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "studentmonitor"

// Frame drop reasons used as the "reason" label of FramesDropped
const (
	DropInvalidMessage = "invalid_message"
	DropDecode         = "decode"
	DropRateLimited    = "rate_limited"
	DropSuperseded     = "superseded"
	DropAnalyzer       = "analyzer"
	DropQueueFull      = "queue_full"
)

// Metrics holds every collector the relay exports
type Metrics struct {
	ActiveConnections    *prometheus.GaugeVec
	RecordsPublished     prometheus.Counter
	ConsumerDeliveries   prometheus.Counter
	SendFailures         *prometheus.CounterVec
	FramesDropped        *prometheus.CounterVec
	AnalyzerDuration     prometheus.Histogram
	AnalyzerBreakerState prometheus.Gauge
	HistoryLength        prometheus.Gauge
	JournalErrors        prometheus.Counter
}

// New creates the relay metrics and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of registered connections by role.",
		}, []string{"role"}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "records_published_total",
			Help:      "Total analysis records committed to history.",
		}),
		ConsumerDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "consumer_deliveries_total",
			Help:      "Total student_update messages queued to consumers.",
		}),
		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "send_failures_total",
			Help:      "Sends that failed and caused the connection to be unregistered, by role.",
		}, []string{"role"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "producer",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames skipped without producing a record, by reason.",
		}, []string{"reason"}),
		AnalyzerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analyzer",
			Name:      "duration_seconds",
			Help:      "Time spent in the frame analyzer.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		AnalyzerBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analyzer",
			Name:      "circuit_breaker_state",
			Help:      "Analyzer circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		HistoryLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "length",
			Help:      "Number of records currently held in the session history.",
		}),
		JournalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "errors_total",
			Help:      "Journal writes that failed after retry.",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.RecordsPublished,
		m.ConsumerDeliveries,
		m.SendFailures,
		m.FramesDropped,
		m.AnalyzerDuration,
		m.AnalyzerBreakerState,
		m.HistoryLength,
		m.JournalErrors,
	)
	return m
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
