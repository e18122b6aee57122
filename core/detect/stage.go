// Package detect wraps an opaque detector capability as one inspection
// stage: it runs inference, filters by the stage threshold, and keeps the
// resulting detection list order-stable.
package detect

import (
	"context"
	"math"
	"sort"

	"inspection-orchestrator/core/fault"
	"inspection-orchestrator/core/models"
)

// Detector is the opaque inference capability consumed by a stage. Infer
// must be deterministic for a fixed model/image pair. Implementations are
// not guaranteed safe for concurrent invocation; callers serialize.
type Detector interface {
	Name() string
	Loaded() bool
	Infer(ctx context.Context, image []byte) ([]models.Detection, error)
}

// Stage runs one detection stage (top, front or defect) and normalizes
// its results.
type Stage struct {
	detector  Detector
	threshold float64
}

// NewStage creates a stage over a detector with its score threshold.
func NewStage(det Detector, threshold float64) *Stage {
	return &Stage{detector: det, threshold: threshold}
}

// Name returns the wrapped detector name.
func (s *Stage) Name() string {
	if s.detector == nil {
		return ""
	}
	return s.detector.Name()
}

// Ready reports whether the underlying model is loaded.
func (s *Stage) Ready() bool {
	return s.detector != nil && s.detector.Loaded()
}

// Run executes inference and returns detections at or above the stage
// threshold, with stable 1-based indices assigned in detector output
// order. Indices are assigned once and never renumbered.
func (s *Stage) Run(ctx context.Context, image []byte) ([]models.Detection, error) {
	if s.detector == nil {
		return nil, fault.New(fault.KindInference, "detect", "no detector configured")
	}
	if !s.detector.Loaded() {
		return nil, fault.New(fault.KindInference, s.detector.Name(), "model not loaded")
	}
	dets, err := s.detector.Infer(ctx, image)
	if err != nil {
		return nil, fault.Wrap(fault.KindInference, s.detector.Name(), err)
	}
	out := make([]models.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Score < s.threshold {
			continue
		}
		d.Index = len(out) + 1
		out = append(out, d)
	}
	return out, nil
}

// SelectBest picks the front-view detection to carry forward: closest to
// the crop center first, highest score as the tiebreak. Returns nil for an
// empty list.
func SelectBest(dets []models.Detection, width, height int) *models.Detection {
	if len(dets) == 0 {
		return nil
	}
	cx := float64(width) / 2.0
	cy := float64(height) / 2.0

	ranked := make([]models.Detection, len(dets))
	copy(ranked, dets)
	sort.SliceStable(ranked, func(i, j int) bool {
		di := centerDist2(ranked[i], cx, cy)
		dj := centerDist2(ranked[j], cx, cy)
		if di != dj {
			return di < dj
		}
		return ranked[i].Score > ranked[j].Score
	})
	best := ranked[0]
	return &best
}

func centerDist2(d models.Detection, cx, cy float64) float64 {
	c := d.Center()
	return math.Pow(c.X-cx, 2) + math.Pow(c.Y-cy, 2)
}
