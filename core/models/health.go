package models

// SubsystemState represents the readiness of a single subsystem.
type SubsystemState string

const (
	SubsystemOK       SubsystemState = "ok"
	SubsystemNotReady SubsystemState = "not_ready"
)

// SubsystemStatus is the readiness of one subsystem with a short cause.
type SubsystemStatus struct {
	State    SubsystemState `json:"state"`
	Cause    string         `json:"cause,omitempty"`
	Advisory bool           `json:"advisory,omitempty"` // failure does not block readiness
}

// HealthStatus aggregates subsystem readiness into a go/no-go decision.
// It is recomputed on demand and never cached beyond one health check.
type HealthStatus struct {
	Ready      bool                       `json:"ready"`
	Subsystems map[string]SubsystemStatus `json:"subsystems"`
}

// Blockers returns the names of required subsystems that are not ready.
func (h HealthStatus) Blockers() []string {
	var out []string
	for name, st := range h.Subsystems {
		if st.State != SubsystemOK && !st.Advisory {
			out = append(out, name)
		}
	}
	return out
}
