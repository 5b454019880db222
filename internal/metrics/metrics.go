// internal/metrics/metrics.go
package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sua-org/cam-timelapse/internal/core"
)

// Metrics agrupa os coletores do fetcher. Todos os métodos aceitam
// receiver nil, assim quem não quer métricas só passa nil.
type Metrics struct {
	registry *prometheus.Registry

	attempts      *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	exhausted     *prometheus.CounterVec
	savedBytes    *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	inflight      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timelapse_fetch_attempts_total",
			Help: "Snapshot requests by camera and attempt outcome.",
		}, []string{"camera", "outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timelapse_fetches_total",
			Help: "Logical fetches (after retries) by camera and final outcome.",
		}, []string{"camera", "outcome"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timelapse_fetch_retries_exhausted_total",
			Help: "Logical fetches that used every attempt and still failed.",
		}, []string{"camera"}),
		savedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timelapse_saved_bytes_total",
			Help: "Bytes of snapshot data written to disk.",
		}, []string{"camera"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timelapse_cycle_duration_seconds",
			Help:    "Wall time from cycle start to fan-in.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timelapse_inflight_tasks",
			Help: "Per-camera tasks currently running.",
		}),
	}

	m.registry.MustRegister(
		m.attempts,
		m.fetches,
		m.exhausted,
		m.savedBytes,
		m.cycleDuration,
		m.inflight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler expõe /metrics só com o registry próprio.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog: log.Default(),
	})
}

func (m *Metrics) ObserveAttempt(camera string, o core.FetchOutcome) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(camera, string(o.Kind)).Inc()
	if o.Kind == core.OutcomeSaved {
		m.savedBytes.WithLabelValues(camera).Add(float64(o.Bytes))
	}
}

func (m *Metrics) ObserveFetch(camera string, o core.FetchOutcome, exhausted bool) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(camera, string(o.Kind)).Inc()
	if exhausted {
		m.exhausted.WithLabelValues(camera).Inc()
	}
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) SetInFlight(n int) {
	if m == nil {
		return
	}
	m.inflight.Set(float64(n))
}
