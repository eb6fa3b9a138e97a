package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveScan(t *testing.T) {
	m := NewMetrics("test")

	m.ObserveScan(true, time.Millisecond)
	m.ObserveScan(false, time.Millisecond)
	m.ObserveScan(true, 2*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Scans.WithLabelValues("pii")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Scans.WithLabelValues("clean")))
}

func TestObserveReload(t *testing.T) {
	m := NewMetrics("test")

	m.ObserveReload(true, 3, 2)
	m.ObserveReload(false, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RuleReloads.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RuleReloads.WithLabelValues("failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveRules.WithLabelValues("standalone")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveRules.WithLabelValues("combinatorial")))
}

func TestMetricsInstancesAreIndependent(t *testing.T) {
	a := NewMetrics("test")
	b := NewMetrics("test")

	a.ObserveRequest("/v1/scan", http.StatusOK)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.HTTPRequests.WithLabelValues("/v1/scan", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.HTTPRequests.WithLabelValues("/v1/scan", "200")))
}

func TestHandler(t *testing.T) {
	m := NewMetrics("pii_sentinel")
	m.ParseErrors.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pii_sentinel_parse_errors_total 1")
}
