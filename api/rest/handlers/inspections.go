package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"inspection-orchestrator/core/fault"
	"inspection-orchestrator/core/monitoring"
	"inspection-orchestrator/core/repository"
	"inspection-orchestrator/core/workflow"
)

// InspectionHandler handles inspection-related HTTP requests.
type InspectionHandler struct {
	orchestrator *workflow.Orchestrator
	inspRepo     *repository.InspectionRepository
	eventRepo    *repository.EventRepository
	tracker      *monitoring.CycleTracker
}

// NewInspectionHandler creates a new inspection handler. The repositories
// and tracker may be nil when the subsystems are disabled.
func NewInspectionHandler(
	orch *workflow.Orchestrator,
	inspRepo *repository.InspectionRepository,
	eventRepo *repository.EventRepository,
	tracker *monitoring.CycleTracker,
) *InspectionHandler {
	return &InspectionHandler{
		orchestrator: orch,
		inspRepo:     inspRepo,
		eventRepo:    eventRepo,
		tracker:      tracker,
	}
}

// StartInspectionRequest represents the request to start an inspection.
type StartInspectionRequest struct {
	PartID string `json:"part_id"`
}

// StartInspectionResponse represents the response after starting one.
type StartInspectionResponse struct {
	ID     string `json:"id"`
	PartID string `json:"part_id"`
	State  string `json:"state"`
}

// StartInspection handles POST /v1/inspections
func (h *InspectionHandler) StartInspection(w http.ResponseWriter, r *http.Request) {
	var req StartInspectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PartID == "" {
		http.Error(w, "part_id is required", http.StatusBadRequest)
		return
	}

	job, err := h.orchestrator.StartJob(req.PartID)
	if err != nil {
		// A failing health gate means the request was understood but the
		// cell cannot act on it; a busy cell is a conflict.
		status := http.StatusConflict
		if fault.Is(err, fault.KindHealthCheck) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, "Failed to start inspection: "+err.Error(), status)
		return
	}

	resp := StartInspectionResponse{
		ID:     job.ID,
		PartID: job.PartID,
		State:  string(job.State),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(resp)
}

// GetCurrent handles GET /v1/inspections/current
func (h *InspectionHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.orchestrator.Snapshot())
}

// AbortCurrent handles POST /v1/inspections/current/abort
func (h *InspectionHandler) AbortCurrent(w http.ResponseWriter, r *http.Request) {
	if !h.orchestrator.State().Running() {
		http.Error(w, "No inspection running", http.StatusConflict)
		return
	}
	h.orchestrator.Abort()
	w.WriteHeader(http.StatusAccepted)
}

// GetInspection handles GET /v1/inspections/{id}
func (h *InspectionHandler) GetInspection(w http.ResponseWriter, r *http.Request) {
	if h.inspRepo == nil {
		http.Error(w, "History is disabled", http.StatusNotFound)
		return
	}
	vars := mux.Vars(r)
	id := vars["id"]

	insp, err := h.inspRepo.GetInspection(id)
	if err != nil {
		http.Error(w, "Inspection not found", http.StatusNotFound)
		return
	}

	findings, _ := h.inspRepo.GetFindings(id)

	response := map[string]interface{}{
		"inspection": insp,
		"findings":   findings,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ListInspections handles GET /v1/inspections
func (h *InspectionHandler) ListInspections(w http.ResponseWriter, r *http.Request) {
	if h.inspRepo == nil {
		http.Error(w, "History is disabled", http.StatusNotFound)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	inspections, err := h.inspRepo.ListInspections(r.URL.Query().Get("part_id"), limit)
	if err != nil {
		http.Error(w, "Failed to list inspections: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"inspections": inspections})
}

// GetEvents handles GET /v1/inspections/{id}/events
func (h *InspectionHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	if h.eventRepo == nil {
		http.Error(w, "History is disabled", http.StatusNotFound)
		return
	}
	vars := mux.Vars(r)

	events, err := h.eventRepo.GetEvents(vars["id"], 100)
	if err != nil {
		http.Error(w, "Failed to get events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"events": events})
}

// GetMetrics handles GET /v1/metrics
func (h *InspectionHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		http.Error(w, "Metrics are disabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.tracker.Stats())
}
