package handler

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// HealthChecker is an interface for services that can be health-checked
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks  map[string]HealthChecker
	version string
	mode    string
	timeout time.Duration
}

// NewHealthHandler creates a new health handler. checks maps a dependency name
// ("postgres", "redis") to its client; nil clients are ignored.
func NewHealthHandler(checks map[string]HealthChecker, version, mode string) *HealthHandler {
	live := make(map[string]HealthChecker, len(checks))
	for name, c := range checks {
		if c != nil {
			live[name] = c
		}
	}
	return &HealthHandler{
		checks:  live,
		version: version,
		mode:    mode,
		timeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Mode      string            `json:"mode,omitempty"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Mode:      h.mode,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	services := make(map[string]string, len(names))
	allHealthy := true
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			services[name] = "unhealthy: " + err.Error()
			allHealthy = false
			continue
		}
		services[name] = "healthy"
	}

	response := HealthResponse{
		Version:   h.version,
		Mode:      h.mode,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	}

	if allHealthy {
		response.Status = "ready"
		writeJSON(w, http.StatusOK, response)
		return
	}
	response.Status = "not ready"
	writeJSON(w, http.StatusServiceUnavailable, response)
}

// Live handles GET /live
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
