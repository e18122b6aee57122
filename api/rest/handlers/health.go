package handlers

import (
	"encoding/json"
	"net/http"

	"inspection-orchestrator/core/health"
)

// HealthHandler exposes the aggregated cell readiness.
type HealthHandler struct {
	gate *health.Gate
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(gate *health.Gate) *HealthHandler {
	return &HealthHandler{gate: gate}
}

// GetHealth handles GET /health. Returns 200 when the cell is ready to
// accept a job and 503 with the per-subsystem causes otherwise.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := h.gate.Check()

	w.Header().Set("Content-Type", "application/json")
	if !status.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
