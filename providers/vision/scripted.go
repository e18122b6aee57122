package vision

import (
	"context"
	"sync"
	"time"

	"inspection-orchestrator/core/models"
)

// ScriptedDetector replays a fixed sequence of detection lists, one list
// per Infer call, repeating the last list once the script runs out. It
// backs the simulation mode and the workflow tests.
type ScriptedDetector struct {
	name   string
	mu     sync.Mutex
	script [][]models.Detection
	call   int

	// FailWith, when set, fails every Infer call.
	FailWith error

	// Delay simulates inference latency; cancelling the context cuts
	// the wait short.
	Delay time.Duration
}

// NewScriptedDetector creates a detector replaying the given script. An
// empty script yields no detections.
func NewScriptedDetector(name string, script ...[]models.Detection) *ScriptedDetector {
	return &ScriptedDetector{name: name, script: script}
}

// Name returns the detector name.
func (d *ScriptedDetector) Name() string {
	return d.name
}

// Loaded always reports true.
func (d *ScriptedDetector) Loaded() bool {
	return true
}

// Calls returns how many times Infer has run.
func (d *ScriptedDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.call
}

// Infer returns the next scripted detection list.
func (d *ScriptedDetector) Infer(ctx context.Context, image []byte) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.call++
	if d.FailWith != nil {
		return nil, d.FailWith
	}
	if len(d.script) == 0 {
		return nil, nil
	}
	i := d.call - 1
	if i >= len(d.script) {
		i = len(d.script) - 1
	}
	out := make([]models.Detection, len(d.script[i]))
	copy(out, d.script[i])
	return out, nil
}
