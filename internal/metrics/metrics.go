// Package metrics exposes Prometheus counters for comparison runs and the REST endpoints.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ivcompare"

// Metrics records per-source observation counts, source failures, run latency and the
// number of divergences found by the last run. A nil *Metrics records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	observations    *prometheus.CounterVec
	sourceErrors    *prometheus.CounterVec
	runDuration     prometheus.Histogram
	divergences     prometheus.Gauge
	requestDuration *prometheus.HistogramVec
}

// New constructs the collectors on a private registry.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Number of (delta, IV) observations aggregated per source.",
		}, []string{"source"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Number of failed source fetches.",
		}, []string{"source"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Latency distribution of comparison runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		divergences: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "divergences",
			Help:      "Spreads at or above the alert threshold in the last run.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	for _, c := range []prometheus.Collector{m.observations, m.sourceErrors, m.runDuration, m.divergences, m.requestDuration} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveSource records the outcome of one source fetch.
func (m *Metrics) ObserveSource(source string, observations int, err error) {
	if m == nil {
		return
	}
	m.observations.WithLabelValues(source).Add(float64(observations))
	if err != nil {
		m.sourceErrors.WithLabelValues(source).Inc()
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(d time.Duration, divergences int) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
	m.divergences.Set(float64(divergences))
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		status := strconv.Itoa(rw.status)
		m.requestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
