package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spawn-mcp/adshipper/pkg/types"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.RowFinished(types.RowShipped, 3*time.Second)
	m.RowFinished(types.RowFailed, time.Second)
	m.AdSetResolved(true)
	m.AdSetResolved(false)
	m.AdSetResolved(false)
	m.JobTransition(types.JobStaging)
	m.RowSkipped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsTotal.WithLabelValues("shipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdSetsResolved.WithLabelValues("created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AdSetsResolved.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobTransitions.WithLabelValues("staging")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsSkipped))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.CacheMiss()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `adshipper_analysis_cache_lookups_total{result="miss"} 1`)
}
