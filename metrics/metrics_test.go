package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveRequest("recommend", OutcomeOK, 5*time.Millisecond)
	m.ObserveRequest("recommend", OutcomeOK, 7*time.Millisecond)
	m.ObserveRequest("search", OutcomeNotReady, time.Millisecond)
	m.AddFiltered(3)
	m.AddFiltered(0)
	m.AddFiltered(-2)
	m.ObserveRebuild(time.Second)
	m.AddIngested(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("recommend", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("search", OutcomeNotReady)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.filteredTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rebuildsTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.itemsIngested))
}

func TestMetrics_Gauges(t *testing.T) {
	m := New()

	m.SetIndexEntries("vector", 120)
	m.SetIndexEntries("keyword", 118)
	m.SetHydrationState(5)

	assert.Equal(t, 120.0, testutil.ToFloat64(m.indexEntries.WithLabelValues("vector")))
	assert.Equal(t, 118.0, testutil.ToFloat64(m.indexEntries.WithLabelValues("keyword")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.hydrationState))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveRequest("search", OutcomeOK, time.Millisecond)
		m.AddFiltered(1)
		m.SetIndexEntries("vector", 1)
		m.SetHydrationState(1)
		m.ObserveRebuild(time.Second)
		m.AddIngested(1)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SetIndexEntries("vector", 7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `curata_index_entries{index="vector"} 7`))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.AddFiltered(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.filteredTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.filteredTotal))
}
