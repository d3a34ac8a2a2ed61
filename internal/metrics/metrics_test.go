package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveGeneration("ok", 10, time.Second)
		m.SetActiveGenerations(2)
		m.AddAnalyses(3)
		m.IncrementCSVExports()
		m.ObserveStoreOp("save", nil)
		m.IncrementStoreRetry("save")
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestObserveGeneration(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveGeneration("ok", 31, 20*time.Millisecond)
	m.ObserveGeneration("rejected", 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues("rejected")))
	assert.Equal(t, 31.0, testutil.ToFloat64(m.IDsGenerated))
}

func TestStoreCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveStoreOp("get", nil)
	m.ObserveStoreOp("get", errors.New("down"))
	m.IncrementStoreRetry("get")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOps.WithLabelValues("get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOps.WithLabelValues("get", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreRetries.WithLabelValues("get")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.IncrementCSVExports()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "iccid_csv_exports_total 1")
}
