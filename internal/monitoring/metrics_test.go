package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ptel-geocoder/pkg/geocode"
)

func TestMetrics_Disabled(t *testing.T) {
	m := New(Config{Enabled: false})
	assert.Nil(t, m.Registry())

	// No panics on a disabled or nil set.
	m.ObserveSource(geocode.SourceResult{SourceID: "x", Status: geocode.StatusSuccess})
	m.ObserveCascade(geocode.CategoryHealth, "resolved", "dera_health")
	m.ObserveConcordance(1)

	var nilMetrics *Metrics
	nilMetrics.ObserveSource(geocode.SourceResult{})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_ObserveSource(t *testing.T) {
	m := New(Config{Enabled: true, Namespace: "ptel"})

	m.ObserveSource(geocode.SourceResult{SourceID: "cartociudad", Status: geocode.StatusSuccess, ResponseTimeMs: 120})
	m.ObserveSource(geocode.SourceResult{SourceID: "cartociudad", Status: geocode.StatusTimeout, ResponseTimeMs: 10000})
	m.ObserveSource(geocode.SourceResult{SourceID: "cartociudad", Status: geocode.StatusSuccess, ResponseTimeMs: 80})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sourceCalls.WithLabelValues("cartociudad", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sourceCalls.WithLabelValues("cartociudad", "timeout")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.sourceDuration))
}

func TestMetrics_CascadeAndConcordance(t *testing.T) {
	m := New(Config{Enabled: true, Namespace: "ptel"})

	m.ObserveCascade(geocode.CategoryHealth, "resolved", "dera_health")
	m.ObserveCascade(geocode.CategoryHealth, "not_found", "")
	m.ObserveConcordance(0.85)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cascadeResults.WithLabelValues("health", "resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cascadeLevel.WithLabelValues("dera_health")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.cascadeLevel))
}

func TestMetrics_Handler(t *testing.T) {
	m := New(Config{Enabled: true, Namespace: "ptel"})
	m.ObserveConcordance(0.5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ptel_consensus_concordance_count 1"))
}
