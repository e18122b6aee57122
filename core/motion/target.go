package motion

import (
	"math"

	"inspection-orchestrator/core/models"
	"inspection-orchestrator/core/profile"
)

// TargetFor derives the motion target for one top-view detection.
//
// The turntable angle is the detection's orientation angle phi, in degrees,
// normalized to [0,360). The axis position starts from the configured home
// and is offset by the detection's horizontal displacement from the top
// image center, rotated into the front camera's frame by phi, then scaled
// top-pixels -> front-pixels through the measured front FOV width and
// front-pixels -> millimeters through the pixels-per-mm factor.
func TargetFor(det models.Detection, p *profile.Profile) models.MotionTarget {
	cx0 := float64(p.TopWidthPx) / 2.0
	cy0 := float64(p.TopHeightPx) / 2.0

	c := det.Center()
	dx := c.X - cx0
	dy := c.Y - cy0
	offRotPx := dx*math.Cos(det.Phi) - dy*math.Sin(det.Phi)

	frontPx := (offRotPx / p.FrontFOVTopPx) * p.FrontImageWidthPx
	mm := p.HomeMM() + frontPx/p.PixelsPerMM

	return models.MotionTarget{
		AngleDeg: NormalizeDeg(det.PhiDegrees()),
		AxisMM:   mm, // clamped by the coordinator at move time
	}
}

// CorrectionMM converts a measured front-image pixel offset into the
// corrected absolute axis position. A positive dx (detection right of the
// crop center) moves the axis backward, matching the cell geometry.
func CorrectionMM(currentMM, dxPx float64, p *profile.Profile) float64 {
	return currentMM - dxPx/p.PixelsPerMM
}

// WithinTolerance reports whether a pixel offset is small enough to skip
// the correction move. The tolerance is a percentage of the axis travel.
func WithinTolerance(dxPx float64, p *profile.Profile) bool {
	tolMM := (p.AlignmentTolPct / 100.0) * p.AxisTravelMM
	return math.Abs(dxPx/p.PixelsPerMM) <= tolMM
}
