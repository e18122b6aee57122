// Package motion drives the rotary stage and the linear stage as a single
// coordinated pose. Each axis device handle is owned exclusively by its
// adapter; the coordinator only sequences commands.
package motion

import (
	"context"
	"log"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"inspection-orchestrator/core/fault"
	"inspection-orchestrator/core/models"
)

// Turntable is the rotary stage adapter consumed by the coordinator.
type Turntable interface {
	Connected() bool
	Homed() bool
	Home(ctx context.Context) error
	// MoveToAngle blocks until the stage settles at the absolute angle.
	MoveToAngle(ctx context.Context, deg float64) error
	Angle() float64
}

// LinearAxis is the linear stage adapter consumed by the coordinator.
type LinearAxis interface {
	Connected() bool
	Calibrated() bool
	Calibrate(ctx context.Context) error
	// MoveToMM blocks until the axis settles at the absolute position.
	MoveToMM(ctx context.Context, mm float64) error
	PositionMM() float64
	TravelMM() float64
}

// Coordinator exposes a single move-to-pose operation over both axes.
type Coordinator struct {
	turntable Turntable
	axis      LinearAxis

	turntableTimeout time.Duration
	axisTimeout      time.Duration
}

// NewCoordinator creates a motion coordinator.
func NewCoordinator(tt Turntable, axis LinearAxis, ttTimeout, axisTimeout time.Duration) *Coordinator {
	return &Coordinator{
		turntable:        tt,
		axis:             axis,
		turntableTimeout: ttTimeout,
		axisTimeout:      axisTimeout,
	}
}

// MoveTo commands both axes to the target pose and returns once both have
// settled. Both device calls are issued back-to-back with no wait between
// them, so total wall time approximates max(turntable, axis) rather than
// their sum. The angle is normalized to [0,360); the axis position is
// clamped to the calibrated travel, and a clamp is a logged warning, not
// an error.
func (c *Coordinator) MoveTo(ctx context.Context, target models.MotionTarget) error {
	if !c.turntable.Homed() {
		return fault.New(fault.KindMotionFault, "turntable", "move rejected: turntable not homed")
	}
	if !c.axis.Calibrated() {
		return fault.New(fault.KindMotionFault, "linear_axis", "move rejected: axis not calibrated")
	}

	angle := NormalizeDeg(target.AngleDeg)
	mm := target.AxisMM
	if clamped := clampMM(mm, c.axis.TravelMM()); clamped != mm {
		log.Printf("[motion] axis target %.2fmm clamped to %.2fmm (travel %.2fmm)", mm, clamped, c.axis.TravelMM())
		mm = clamped
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		moveCtx, cancel := context.WithTimeout(gCtx, c.turntableTimeout)
		defer cancel()
		if err := c.turntable.MoveToAngle(moveCtx, angle); err != nil {
			return fault.Wrap(fault.KindMotionFault, "turntable", err)
		}
		return nil
	})
	g.Go(func() error {
		moveCtx, cancel := context.WithTimeout(gCtx, c.axisTimeout)
		defer cancel()
		if err := c.axis.MoveToMM(moveCtx, mm); err != nil {
			return fault.Wrap(fault.KindMotionFault, "linear_axis", err)
		}
		return nil
	})
	return g.Wait()
}

// Home homes the turntable and returns the axis to its configured home
// position. Both moves run concurrently.
func (c *Coordinator) Home(ctx context.Context, axisHomeMM float64) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		moveCtx, cancel := context.WithTimeout(gCtx, c.turntableTimeout)
		defer cancel()
		if err := c.turntable.Home(moveCtx); err != nil {
			return fault.Wrap(fault.KindMotionFault, "turntable", err)
		}
		return nil
	})
	g.Go(func() error {
		if !c.axis.Calibrated() {
			return nil // nothing to return to
		}
		moveCtx, cancel := context.WithTimeout(gCtx, c.axisTimeout)
		defer cancel()
		if err := c.axis.MoveToMM(moveCtx, clampMM(axisHomeMM, c.axis.TravelMM())); err != nil {
			return fault.Wrap(fault.KindMotionFault, "linear_axis", err)
		}
		return nil
	})
	return g.Wait()
}

// Calibrate runs the linear-axis calibration sequence.
func (c *Coordinator) Calibrate(ctx context.Context) error {
	moveCtx, cancel := context.WithTimeout(ctx, c.axisTimeout)
	defer cancel()
	if err := c.axis.Calibrate(moveCtx); err != nil {
		return fault.Wrap(fault.KindMotionFault, "linear_axis", err)
	}
	return nil
}

// Position returns the current turntable angle and axis position.
func (c *Coordinator) Position() (angleDeg, mm float64) {
	return c.turntable.Angle(), c.axis.PositionMM()
}

// Ready reports whether both axes accept moves.
func (c *Coordinator) Ready() bool {
	return c.turntable.Connected() && c.turntable.Homed() &&
		c.axis.Connected() && c.axis.Calibrated()
}

// NormalizeDeg wraps an angle into [0,360).
func NormalizeDeg(deg float64) float64 {
	d := math.Mod(deg, 360.0)
	if d < 0 {
		d += 360.0
	}
	return d
}

func clampMM(mm, travel float64) float64 {
	if mm < 0 {
		return 0
	}
	if mm > travel {
		return travel
	}
	return mm
}
