package router

import (
	"net/http"
	"strings"
	"time"

	"fleet-audit/internal/interfaces/http/handler"
	"fleet-audit/internal/pkg/metrics"
)

// Router holds all HTTP handlers
type Router struct {
	mux            *http.ServeMux
	auditHandler   *handler.AuditHandler
	healthHandler  *handler.HealthHandler
	metricsHandler http.Handler
	metrics        *metrics.Metrics
}

// NewRouter creates a new router with all routes configured.
// metricsHandler and m may be nil when metrics are disabled.
func NewRouter(
	auditHandler *handler.AuditHandler,
	healthHandler *handler.HealthHandler,
	metricsHandler http.Handler,
	m *metrics.Metrics,
) *Router {
	r := &Router{
		mux:            http.NewServeMux(),
		auditHandler:   auditHandler,
		healthHandler:  healthHandler,
		metricsHandler: metricsHandler,
		metrics:        m,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	// Health endpoints
	r.handle("GET /health", r.healthHandler.Health)
	r.handle("GET /ready", r.healthHandler.Ready)
	r.handle("GET /live", r.healthHandler.Live)

	if r.metricsHandler != nil {
		r.mux.Handle("GET /metrics", r.metricsHandler)
	}

	// Audit runs
	r.handle("POST /api/v1/audits", r.auditHandler.RunAudit)
	r.handle("GET /api/v1/audits", r.auditHandler.ListAudits)
	r.handle("GET /api/v1/audits/{id}", r.auditHandler.GetAudit)
}

// handle registers h and records request metrics under the route pattern
func (r *Router) handle(pattern string, h http.HandlerFunc) {
	if r.metrics == nil {
		r.mux.HandleFunc(pattern, h)
		return
	}
	method, path, _ := strings.Cut(pattern, " ")
	r.mux.HandleFunc(pattern, func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, req)
		r.metrics.ObserveHTTP(method, path, sw.status, time.Since(start))
	})
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// Add CORS headers
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// Handler returns the http.Handler
func (r *Router) Handler() http.Handler {
	return r
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
