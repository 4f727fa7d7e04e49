package devsource

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the dev source.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	recordsTotal     *prometheus.CounterVec
	streamsCompleted prometheus.Counter
	activeStreams    prometheus.Gauge
	errorsTotal      prometheus.Counter
}

// NewMetrics creates and registers the dev source metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pmocast_devsource_requests_total",
		Help: "Total number of HTTP requests received",
	}, []string{"path"})
	recordsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pmocast_devsource_records_total",
		Help: "Total number of stream records emitted",
	}, []string{"kind"})
	streamsCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pmocast_devsource_streams_completed_total",
		Help: "Total number of segment streams that reached their done record",
	})
	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pmocast_devsource_active_streams",
		Help: "Number of segment streams being written",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pmocast_devsource_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(requestsTotal, recordsTotal, streamsCompleted, activeStreams, errorsTotal)

	return &Metrics{
		registry:         registry,
		requestsTotal:    requestsTotal,
		recordsTotal:     recordsTotal,
		streamsCompleted: streamsCompleted,
		activeStreams:    activeStreams,
		errorsTotal:      errorsTotal,
	}
}

func (m *Metrics) incRecords(kind string) {
	m.recordsTotal.WithLabelValues(kind).Inc()
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusWriter captures the status code. It forwards Flush so streamed
// records reach the client as they are written.
type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
