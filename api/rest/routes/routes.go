package routes

import (
	"github.com/gorilla/mux"

	"inspection-orchestrator/api/rest/handlers"
	"inspection-orchestrator/core/health"
	"inspection-orchestrator/core/monitoring"
	"inspection-orchestrator/core/repository"
	"inspection-orchestrator/core/workflow"
)

// SetupRoutes configures all API routes. The database may be nil when the
// history subsystem is disabled.
func SetupRoutes(
	r *mux.Router,
	orch *workflow.Orchestrator,
	gate *health.Gate,
	db *repository.DB,
	tracker *monitoring.CycleTracker,
) {
	var inspRepo *repository.InspectionRepository
	var eventRepo *repository.EventRepository
	if db != nil {
		inspRepo = repository.NewInspectionRepository(db)
		eventRepo = repository.NewEventRepository(db)
	}

	inspectionHandler := handlers.NewInspectionHandler(orch, inspRepo, eventRepo, tracker)
	healthHandler := handlers.NewHealthHandler(gate)

	r.HandleFunc("/health", healthHandler.GetHealth).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()

	// Inspection endpoints
	api.HandleFunc("/inspections", inspectionHandler.StartInspection).Methods("POST")
	api.HandleFunc("/inspections", inspectionHandler.ListInspections).Methods("GET")
	api.HandleFunc("/inspections/current", inspectionHandler.GetCurrent).Methods("GET")
	api.HandleFunc("/inspections/current/abort", inspectionHandler.AbortCurrent).Methods("POST")
	api.HandleFunc("/inspections/{id}", inspectionHandler.GetInspection).Methods("GET")
	api.HandleFunc("/inspections/{id}/events", inspectionHandler.GetEvents).Methods("GET")
	api.HandleFunc("/metrics", inspectionHandler.GetMetrics).Methods("GET")
}
