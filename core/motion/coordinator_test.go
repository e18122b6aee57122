package motion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inspection-orchestrator/core/fault"
	"inspection-orchestrator/core/models"
	"inspection-orchestrator/providers/plc"
)

func readyCoordinator(t *testing.T, degPerSec, mmPerSec float64) (*Coordinator, *plc.SimTurntable, *plc.SimLinearAxis) {
	t.Helper()
	tt := plc.NewSimTurntable(degPerSec)
	axis := plc.NewSimLinearAxis(200, mmPerSec)
	c := NewCoordinator(tt, axis, 5*time.Second, 5*time.Second)
	require.NoError(t, c.Calibrate(context.Background()))
	require.NoError(t, c.Home(context.Background(), 100))
	return c, tt, axis
}

func TestMoveToIssuesBothAxesConcurrently(t *testing.T) {
	// 180 degrees at 1800 deg/s and 50mm at 500 mm/s both settle in
	// about 100ms. Issued back-to-back, the wall time approximates the
	// max, not the sum.
	c, _, _ := readyCoordinator(t, 1800, 500)

	start := time.Now()
	err := c.MoveTo(context.Background(), models.MotionTarget{AngleDeg: 180, AxisMM: 150})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Less(t, elapsed, 170*time.Millisecond, "moves must overlap")
	require.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
}

func TestMoveToRejectedWhenNotHomed(t *testing.T) {
	tt := plc.NewSimTurntable(0)
	axis := plc.NewSimLinearAxis(200, 0)
	c := NewCoordinator(tt, axis, time.Second, time.Second)

	err := c.MoveTo(context.Background(), models.MotionTarget{AngleDeg: 10, AxisMM: 10})
	require.Error(t, err)
	require.True(t, fault.Is(err, fault.KindMotionFault))
}

func TestMoveToClampsAxisTarget(t *testing.T) {
	c, _, axis := readyCoordinator(t, 0, 0)

	err := c.MoveTo(context.Background(), models.MotionTarget{AngleDeg: 0, AxisMM: 900})
	require.NoError(t, err)
	require.InDelta(t, 200, axis.PositionMM(), 0.01)

	err = c.MoveTo(context.Background(), models.MotionTarget{AngleDeg: 0, AxisMM: -5})
	require.NoError(t, err)
	require.InDelta(t, 0, axis.PositionMM(), 0.01)
}

func TestMoveToNormalizesAngle(t *testing.T) {
	c, tt, _ := readyCoordinator(t, 0, 0)

	require.NoError(t, c.MoveTo(context.Background(), models.MotionTarget{AngleDeg: 450, AxisMM: 100}))
	require.InDelta(t, 90, tt.Angle(), 0.01)

	require.NoError(t, c.MoveTo(context.Background(), models.MotionTarget{AngleDeg: -90, AxisMM: 100}))
	require.InDelta(t, 270, tt.Angle(), 0.01)
}

func TestMoveToWrapsDeviceFault(t *testing.T) {
	c, tt, _ := readyCoordinator(t, 0, 0)
	tt.FailNext = errors.New("encoder glitch")

	err := c.MoveTo(context.Background(), models.MotionTarget{AngleDeg: 45, AxisMM: 100})
	require.Error(t, err)
	require.True(t, fault.Is(err, fault.KindMotionFault))
	require.Contains(t, err.Error(), "turntable")
}

func TestNormalizeDeg(t *testing.T) {
	require.InDelta(t, 0, NormalizeDeg(360), 1e-9)
	require.InDelta(t, 270, NormalizeDeg(-90), 1e-9)
	require.InDelta(t, 15, NormalizeDeg(735), 1e-9)
	require.InDelta(t, 0, NormalizeDeg(0), 1e-9)
}

func TestReady(t *testing.T) {
	c, tt, _ := readyCoordinator(t, 0, 0)
	require.True(t, c.Ready())

	tt.Disconnect()
	require.False(t, c.Ready())
}
