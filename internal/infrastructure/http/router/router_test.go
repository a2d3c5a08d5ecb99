package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditapp "fleet-audit/internal/application/audit"
	"fleet-audit/internal/domain/audit"
	"fleet-audit/internal/interfaces/http/handler"
	"fleet-audit/internal/pkg/metrics"
)

func newTestRouter(reg *prometheus.Registry) *Router {
	m := metrics.New(reg)
	uc := auditapp.NewRunAuditUseCase(audit.DefaultParams(), auditapp.WithMetrics(m))
	return NewRouter(
		handler.NewAuditHandler(uc, 0, nil),
		handler.NewHealthHandler(nil, "test", "standalone"),
		handler.MetricsHandler(reg),
		m,
	)
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestRouter_Routes(t *testing.T) {
	r := newTestRouter(prometheus.NewRegistry())

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ready", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/live", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/api/v1/audits", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(r, http.MethodDelete, "/api/v1/audits", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/v1/unknown", "").Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newTestRouter(prometheus.NewRegistry())

	rec := serve(r, http.MethodOptions, "/api/v1/audits", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RecordsRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newTestRouter(reg)

	rec := serve(r, http.MethodPost, "/api/v1/audits", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{endpoint="/api/v1/audits",method="POST",status="422"} 1`)
	assert.Contains(t, body, `fleet_audit_runs_total{outcome="no_data"} 1`)
}
