// Package health aggregates readiness of all cell subsystems into a single
// go/no-go decision. Checks are pure queries against live adapters and are
// never cached beyond one call.
package health

import (
	"sync"

	"inspection-orchestrator/core/models"
)

// CheckFunc probes one subsystem. A nil return means ready; an error is
// the cause string surfaced to operators.
type CheckFunc func() error

type check struct {
	name     string
	advisory bool
	fn       CheckFunc
}

// Gate evaluates all registered checks without short-circuiting.
type Gate struct {
	mu     sync.Mutex
	checks []check
}

// NewGate creates an empty health gate.
func NewGate() *Gate {
	return &Gate{}
}

// Register adds a required check under a subsystem name.
func (g *Gate) Register(name string, fn CheckFunc) {
	g.add(name, false, fn)
}

// RegisterAdvisory adds a check whose failure is surfaced but does not
// block readiness (the light controller is the one such subsystem).
func (g *Gate) RegisterAdvisory(name string, fn CheckFunc) {
	g.add(name, true, fn)
}

func (g *Gate) add(name string, advisory bool, fn CheckFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks = append(g.checks, check{name: name, advisory: advisory, fn: fn})
}

// Check evaluates every registered check independently and aggregates the
// results. Overall readiness is the logical AND of the required checks.
func (g *Gate) Check() models.HealthStatus {
	g.mu.Lock()
	checks := make([]check, len(g.checks))
	copy(checks, g.checks)
	g.mu.Unlock()

	status := models.HealthStatus{
		Ready:      true,
		Subsystems: make(map[string]models.SubsystemStatus, len(checks)),
	}
	for _, c := range checks {
		st := models.SubsystemStatus{State: models.SubsystemOK, Advisory: c.advisory}
		if err := c.fn(); err != nil {
			st.State = models.SubsystemNotReady
			st.Cause = err.Error()
			if !c.advisory {
				status.Ready = false
			}
		}
		status.Subsystems[c.name] = st
	}
	return status
}
