package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.HedgeResults.WithLabelValues("ok").Inc()
	m.HedgeResults.WithLabelValues("ok").Inc()
	m.ADFResults.WithLabelValues("skipped").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HedgeResults.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ADFResults.WithLabelValues("skipped")))

	// A second set on a fresh registry must not collide.
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
}

func TestHealthStatus_Overall(t *testing.T) {
	h := NewHealthStatus()
	assert.Equal(t, "unhealthy", h.Overall())

	h.mu.Lock()
	h.SQLiteOK = true
	h.mu.Unlock()
	assert.Equal(t, "healthy", h.Overall())

	h.SetRedisEnabled(true)
	assert.Equal(t, "degraded", h.Overall())
}

func TestHealthStatus_ServeHTTP(t *testing.T) {
	h := NewHealthStatus()
	h.mu.Lock()
	h.SQLiteOK = true
	h.mu.Unlock()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["sqlite_ok"])
}
