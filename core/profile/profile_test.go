package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseOverlaysDefaults(t *testing.T) {
	p, err := Parse([]byte(`
top_score_threshold: 0.9
crop_size_px: 1200
axis_home_mm: 80
`))
	require.NoError(t, err)
	require.Equal(t, 0.9, p.TopScoreThreshold)
	require.Equal(t, 1200, p.CropSizePx)
	require.Equal(t, 80.0, p.AxisHomeMM)
	// Untouched fields keep factory defaults.
	require.Equal(t, 0.1, p.FrontScoreThreshold)
	require.Equal(t, 30, p.BBoxPadPx)
}

func TestParseRejectsOutOfRangeThreshold(t *testing.T) {
	_, err := Parse([]byte("defect_score_threshold: 1.5\n"))
	require.Error(t, err)
}

func TestParseRejectsHomeBeyondTravel(t *testing.T) {
	_, err := Parse([]byte("axis_travel_mm: 100\naxis_home_mm: 150\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "axis_home_mm")
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("crop_size_px: [nope"))
	require.Error(t, err)
}

func TestHomeMMDefaultsToMidTravel(t *testing.T) {
	p := Default()
	p.AxisHomeMM = 0
	require.Equal(t, p.AxisTravelMM/2.0, p.HomeMM())

	p.AxisHomeMM = 42
	require.Equal(t, 42.0, p.HomeMM())
}

func TestDurationAccessors(t *testing.T) {
	p := Default()
	p.CaptureTimeoutMS = 250
	p.LightDwellMS = 60
	require.Equal(t, 250*time.Millisecond, p.CaptureTimeout())
	require.Equal(t, 60*time.Millisecond, p.LightDwell())
	require.Equal(t, time.Duration(p.DrainTimeoutMS)*time.Millisecond, p.DrainTimeout())
}
