// Package metrics exposes Prometheus instruments for the ICCID engine.
//
// All recording methods are safe to call on a nil *Metrics, so components
// can be built without metrics in tests and tools.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Batch generations by outcome: "ok", "rejected", "busy", "error"
	Generations *prometheus.CounterVec

	// Wall time of a full generation (range, analysis and save)
	GenerationLatency prometheus.Histogram

	// Identifiers produced across all batches
	IDsGenerated prometheus.Counter

	// Generations currently holding a limiter slot
	ActiveGenerations prometheus.Gauge

	// Single and bulk analyses
	Analyses prometheus.Counter

	// CSV exports served
	CSVExports prometheus.Counter

	// Store calls by operation and result, plus retries
	StoreOps     *prometheus.CounterVec
	StoreRetries *prometheus.CounterVec
}

// New registers the instruments with reg. Passing a fresh registry per test
// avoids duplicate registration panics.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		Generations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "iccid_generations_total",
			Help: "Batch generation requests by outcome",
		}, []string{"outcome"}),

		GenerationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "iccid_generation_duration_seconds",
			Help:    "Duration of batch generation including analysis and persistence",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		IDsGenerated: f.NewCounter(prometheus.CounterOpts{
			Name: "iccid_ids_generated_total",
			Help: "Identifiers generated across all batches",
		}),

		ActiveGenerations: f.NewGauge(prometheus.GaugeOpts{
			Name: "iccid_active_generations",
			Help: "Generations currently running",
		}),

		Analyses: f.NewCounter(prometheus.CounterOpts{
			Name: "iccid_analyses_total",
			Help: "Identifiers analyzed through the analyze endpoints",
		}),

		CSVExports: f.NewCounter(prometheus.CounterOpts{
			Name: "iccid_csv_exports_total",
			Help: "CSV exports served",
		}),

		StoreOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "iccid_store_operations_total",
			Help: "Batch store calls by operation and result",
		}, []string{"op", "result"}),

		StoreRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "iccid_store_retries_total",
			Help: "Batch store retries by operation",
		}, []string{"op"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveGeneration records one generation request.
func (m *Metrics) ObserveGeneration(outcome string, count int, d time.Duration) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.IDsGenerated.Add(float64(count))
		m.GenerationLatency.Observe(d.Seconds())
	}
}

// SetActiveGenerations updates the running generations gauge.
func (m *Metrics) SetActiveGenerations(n int) {
	if m != nil {
		m.ActiveGenerations.Set(float64(n))
	}
}

// AddAnalyses counts analyzed identifiers.
func (m *Metrics) AddAnalyses(n int) {
	if m != nil {
		m.Analyses.Add(float64(n))
	}
}

// IncrementCSVExports counts one served export.
func (m *Metrics) IncrementCSVExports() {
	if m != nil {
		m.CSVExports.Inc()
	}
}

// ObserveStoreOp records the final result of a store call.
func (m *Metrics) ObserveStoreOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StoreOps.WithLabelValues(op, result).Inc()
}

// IncrementStoreRetry counts one retried store call.
func (m *Metrics) IncrementStoreRetry(op string) {
	if m != nil {
		m.StoreRetries.WithLabelValues(op).Inc()
	}
}
