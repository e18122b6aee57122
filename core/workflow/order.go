package workflow

import (
	"math"
	"sort"

	"inspection-orchestrator/core/models"
)

// anchorRad is the visitation anchor: 315 degrees, the bottom-right
// quadrant, chosen to minimize cumulative turntable travel.
const anchorRad = -math.Pi / 4.0

// VisitationOrder returns the stage-2 traversal order: counter-clockwise
// by phi starting from the detection nearest the 315-degree anchor, ties
// broken by ascending stage-1 index. Only the traversal order changes;
// indices assigned in stage 1 are never renumbered.
func VisitationOrder(records []*models.AttachmentRecord) []*models.AttachmentRecord {
	if len(records) == 0 {
		return nil
	}

	start := records[0]
	for _, r := range records[1:] {
		if angularDistance(r.Detection.Phi, anchorRad) < angularDistance(start.Detection.Phi, anchorRad) {
			start = r
		}
	}
	startPhi := start.Detection.Phi

	out := make([]*models.AttachmentRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		ri := ccwRank(out[i].Detection.Phi, startPhi)
		rj := ccwRank(out[j].Detection.Phi, startPhi)
		if ri != rj {
			return ri < rj
		}
		return out[i].Index() < out[j].Index()
	})
	return out
}

// angularDistance is the absolute wrapped difference between two angles.
func angularDistance(a, b float64) float64 {
	r := a - b
	for r <= -math.Pi {
		r += 2 * math.Pi
	}
	for r > math.Pi {
		r -= 2 * math.Pi
	}
	return math.Abs(r)
}

// ccwRank maps phi onto [0,2pi) measured counter-clockwise from startPhi.
func ccwRank(phi, startPhi float64) float64 {
	r := phi - startPhi
	for r < 0 {
		r += 2 * math.Pi
	}
	for r >= 2*math.Pi {
		r -= 2 * math.Pi
	}
	return r
}
