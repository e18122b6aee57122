package workflow

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"inspection-orchestrator/core/models"
)

func rec(index int, phiDeg float64) *models.AttachmentRecord {
	return &models.AttachmentRecord{
		Detection: models.Detection{
			Index: index,
			Phi:   phiDeg * math.Pi / 180.0,
		},
	}
}

func visitedIndices(records []*models.AttachmentRecord) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.Index()
	}
	return out
}

func TestVisitationOrderStartsNearAnchor(t *testing.T) {
	// Anchor is 315 degrees; the quadrant detections must be visited
	// counter-clockwise starting from 315.
	records := []*models.AttachmentRecord{
		rec(1, 45), rec(2, 135), rec(3, 225), rec(4, 315),
	}

	ordered := VisitationOrder(records)
	require.Equal(t, []int{4, 1, 2, 3}, visitedIndices(ordered))
}

func TestVisitationOrderDoesNotRenumber(t *testing.T) {
	records := []*models.AttachmentRecord{rec(1, 90), rec(2, 300)}

	ordered := VisitationOrder(records)
	require.Equal(t, []int{2, 1}, visitedIndices(ordered))
	// Indices carried by the detections are untouched.
	require.Equal(t, 1, records[0].Index())
	require.Equal(t, 2, records[1].Index())
}

func TestVisitationOrderTieBreaksByIndex(t *testing.T) {
	records := []*models.AttachmentRecord{
		rec(3, 100), rec(1, 100), rec(2, 100),
	}

	ordered := VisitationOrder(records)
	require.Equal(t, []int{1, 2, 3}, visitedIndices(ordered))
}

func TestVisitationOrderNegativePhi(t *testing.T) {
	// -45 degrees is exactly the anchor.
	records := []*models.AttachmentRecord{
		rec(1, 170), rec(2, -45), rec(3, 80),
	}

	ordered := VisitationOrder(records)
	require.Equal(t, []int{2, 3, 1}, visitedIndices(ordered))
}

func TestVisitationOrderEmpty(t *testing.T) {
	require.Nil(t, VisitationOrder(nil))
}

func TestVisitationOrderSingle(t *testing.T) {
	records := []*models.AttachmentRecord{rec(1, 10)}
	require.Equal(t, []int{1}, visitedIndices(VisitationOrder(records)))
}
