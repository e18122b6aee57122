package plc

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// SimLinearAxis is a simulated linear stage.
type SimLinearAxis struct {
	mu         sync.Mutex
	connected  bool
	calibrated bool
	position   float64
	travel     float64

	// MMPerSec controls simulated settle time; zero means instant moves.
	MMPerSec float64
	// FailNext, when set, fails the next move and clears itself.
	FailNext error
}

// NewSimLinearAxis creates a connected, uncalibrated axis with the given
// travel length.
func NewSimLinearAxis(travelMM, mmPerSec float64) *SimLinearAxis {
	return &SimLinearAxis{connected: true, travel: travelMM, MMPerSec: mmPerSec}
}

// Connected reports device connectivity.
func (a *SimLinearAxis) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// Calibrated reports whether the calibration sequence has completed.
func (a *SimLinearAxis) Calibrated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calibrated
}

// Disconnect drops the simulated link.
func (a *SimLinearAxis) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
}

// Calibrate runs the end-stop calibration sweep and parks at zero.
func (a *SimLinearAxis) Calibrate(ctx context.Context) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return errors.New("axis not connected")
	}
	travel := a.travel
	a.mu.Unlock()

	// Calibration sweeps the full travel once.
	if err := a.settle(ctx, travel); err != nil {
		return err
	}

	a.mu.Lock()
	a.position = 0
	a.calibrated = true
	a.mu.Unlock()
	return nil
}

// MoveToMM moves to the absolute position and blocks until settled.
func (a *SimLinearAxis) MoveToMM(ctx context.Context, mm float64) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return errors.New("axis not connected")
	}
	if a.FailNext != nil {
		err := a.FailNext
		a.FailNext = nil
		a.mu.Unlock()
		return err
	}
	current := a.position
	a.mu.Unlock()

	if err := a.settle(ctx, math.Abs(mm-current)); err != nil {
		return err
	}

	a.mu.Lock()
	a.position = mm
	a.mu.Unlock()
	return nil
}

// PositionMM returns the last settled position.
func (a *SimLinearAxis) PositionMM() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

// TravelMM returns the calibrated travel length.
func (a *SimLinearAxis) TravelMM() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.travel
}

func (a *SimLinearAxis) settle(ctx context.Context, mm float64) error {
	if a.MMPerSec <= 0 || mm == 0 {
		return nil
	}
	d := time.Duration(mm / a.MMPerSec * float64(time.Second))
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
