package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveAudit("ok", 120*time.Millisecond)
	m.ObserveAudit("ok", 80*time.Millisecond)
	m.ObserveAudit("invalid_params", 0)
	m.ObserveDetector("idle", "ran", 5*time.Millisecond)
	m.ObserveDetector("mpg", "unavailable", 0)
	m.AddViolations("ghost_job", 3)
	m.AddIncidents(2)
	m.AddSkipped("gps", 4)
	m.ObserveHTTP(http.MethodPost, "/api/v1/audits", http.StatusCreated, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.auditsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditsTotal.WithLabelValues("invalid_params")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.detectorRunsTotal.WithLabelValues("mpg", "unavailable")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.violationsTotal.WithLabelValues("ghost_job")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.incidentsTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.skippedTotal.WithLabelValues("gps")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("POST", "/api/v1/audits", "201")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "fleet_audit_duration_seconds")
	assert.Contains(t, names, "fleet_audit_detector_duration_seconds")
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
