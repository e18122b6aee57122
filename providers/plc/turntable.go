// Package plc provides the motion-axis adapters. The simulated devices
// reproduce the timing behavior of the cell hardware (settle time
// proportional to travel) so the workflow can run headless; the real PLC
// drivers plug in behind the same interfaces.
package plc

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// SimTurntable is a simulated rotary stage.
type SimTurntable struct {
	mu        sync.Mutex
	connected bool
	homed     bool
	angle     float64

	// DegPerSec controls simulated settle time; zero means instant moves.
	DegPerSec float64
	// FailNext, when set, fails the next move and clears itself.
	FailNext error
}

// NewSimTurntable creates a connected, unhomed turntable.
func NewSimTurntable(degPerSec float64) *SimTurntable {
	return &SimTurntable{connected: true, DegPerSec: degPerSec}
}

// Connected reports device connectivity.
func (t *SimTurntable) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Homed reports whether the homing sequence has completed.
func (t *SimTurntable) Homed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.homed
}

// Disconnect drops the simulated link. Used by health-gate tests.
func (t *SimTurntable) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
}

// Home runs the homing sequence and parks the stage at zero.
func (t *SimTurntable) Home(ctx context.Context) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return errors.New("turntable not connected")
	}
	current := t.angle
	t.mu.Unlock()

	if err := t.settle(ctx, math.Abs(current)); err != nil {
		return err
	}

	t.mu.Lock()
	t.angle = 0
	t.homed = true
	t.mu.Unlock()
	return nil
}

// MoveToAngle rotates to the absolute angle via the shorter arc and blocks
// until the stage settles.
func (t *SimTurntable) MoveToAngle(ctx context.Context, deg float64) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return errors.New("turntable not connected")
	}
	if t.FailNext != nil {
		err := t.FailNext
		t.FailNext = nil
		t.mu.Unlock()
		return err
	}
	current := t.angle
	t.mu.Unlock()

	delta := math.Mod(deg-current, 360.0)
	if delta > 180 {
		delta -= 360
	}
	if delta < -180 {
		delta += 360
	}
	if err := t.settle(ctx, math.Abs(delta)); err != nil {
		return err
	}

	t.mu.Lock()
	t.angle = deg
	t.mu.Unlock()
	return nil
}

// Angle returns the last settled angle.
func (t *SimTurntable) Angle() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.angle
}

func (t *SimTurntable) settle(ctx context.Context, deg float64) error {
	if t.DegPerSec <= 0 || deg == 0 {
		return nil
	}
	d := time.Duration(deg / t.DegPerSec * float64(time.Second))
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
