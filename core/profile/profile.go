// Package profile loads and validates the cell profile: the calibration
// constants, thresholds and timeouts one inspection cell is tuned with.
// The profile is a plain YAML document injected into the orchestrator at
// startup; nothing reads configuration ad hoc at runtime.
package profile

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Profile represents the validated cell profile.
type Profile struct {
	// Detection thresholds (0-1).
	TopScoreThreshold    float64 `yaml:"top_score_threshold" validate:"gte=0,lte=1"`
	FrontScoreThreshold  float64 `yaml:"front_score_threshold" validate:"gte=0,lte=1"`
	DefectScoreThreshold float64 `yaml:"defect_score_threshold" validate:"gte=0,lte=1"`

	// Front-view geometry.
	CropSizePx  int `yaml:"crop_size_px" validate:"gt=0"`
	BBoxPadPx   int `yaml:"bbox_pad_px" validate:"gte=0"`
	TopWidthPx  int `yaml:"top_width_px" validate:"gt=0"`
	TopHeightPx int `yaml:"top_height_px" validate:"gt=0"`

	// FOV calibration pair plus the front sensor width they map through.
	FrontFOVTopPx     float64 `yaml:"front_fov_top_px" validate:"gt=0"`
	PixelsPerMM       float64 `yaml:"pixels_per_mm" validate:"gt=0"`
	FrontImageWidthPx float64 `yaml:"front_image_width_px" validate:"gt=0"`

	// Linear axis travel. AxisHomeMM of zero means mid-travel.
	AxisTravelMM float64 `yaml:"axis_travel_mm" validate:"gt=0"`
	AxisHomeMM   float64 `yaml:"axis_home_mm" validate:"gte=0"`

	// Timeouts, milliseconds.
	TurntableTimeoutMS int `yaml:"turntable_timeout_ms" validate:"gt=0"`
	AxisTimeoutMS      int `yaml:"axis_timeout_ms" validate:"gt=0"`
	CaptureTimeoutMS   int `yaml:"capture_timeout_ms" validate:"gt=0"`
	DrainTimeoutMS     int `yaml:"drain_timeout_ms" validate:"gt=0"`

	// Light controller. Dwell applies only when a current actually changed.
	LightDwellMS   int `yaml:"light_dwell_ms" validate:"gte=0,lte=2000"`
	TopCurrentMA   int `yaml:"top_current_ma" validate:"gte=0"`
	FrontCurrentMA int `yaml:"front_current_ma" validate:"gte=0"`

	// Optional front alignment correction after the initial capture.
	AlignmentCorrection bool    `yaml:"alignment_correction"`
	AlignmentTolPct     float64 `yaml:"alignment_tol_pct" validate:"gte=0,lte=100"`
}

// Default returns the profile with the cell's factory defaults.
func Default() *Profile {
	return &Profile{
		TopScoreThreshold:    0.8,
		FrontScoreThreshold:  0.1,
		DefectScoreThreshold: 0.5,
		CropSizePx:           1600,
		BBoxPadPx:            30,
		TopWidthPx:           2464,
		TopHeightPx:          2056,
		FrontFOVTopPx:        951,
		PixelsPerMM:          72.3,
		FrontImageWidthPx:    2464,
		AxisTravelMM:         200,
		AxisHomeMM:           0, // mid-travel
		TurntableTimeoutMS:   60000,
		AxisTimeoutMS:        30000,
		CaptureTimeoutMS:     5000,
		DrainTimeoutMS:       120000,
		LightDwellMS:         60,
		TopCurrentMA:         0,
		FrontCurrentMA:       0,
		AlignmentCorrection:  false,
		AlignmentTolPct:      0.05,
	}
}

// Load reads and validates a profile YAML file. Fields absent from the
// file keep their defaults.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return Parse(data)
}

// Parse parses a profile YAML document over the defaults and validates it.
func Parse(data []byte) (*Profile, error) {
	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile YAML: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks field ranges and cross-field consistency.
func (p *Profile) Validate() error {
	if err := validator.New().Struct(p); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	if p.AxisHomeMM > p.AxisTravelMM {
		return fmt.Errorf("invalid profile: axis_home_mm %.2f exceeds axis_travel_mm %.2f", p.AxisHomeMM, p.AxisTravelMM)
	}
	return nil
}

// HomeMM returns the effective axis home position (mid-travel when unset).
func (p *Profile) HomeMM() float64 {
	if p.AxisHomeMM > 0 {
		return p.AxisHomeMM
	}
	return p.AxisTravelMM / 2.0
}

// TurntableTimeout returns the turntable settle timeout.
func (p *Profile) TurntableTimeout() time.Duration {
	return time.Duration(p.TurntableTimeoutMS) * time.Millisecond
}

// AxisTimeout returns the linear-axis settle timeout.
func (p *Profile) AxisTimeout() time.Duration {
	return time.Duration(p.AxisTimeoutMS) * time.Millisecond
}

// CaptureTimeout returns the bounded camera wait.
func (p *Profile) CaptureTimeout() time.Duration {
	return time.Duration(p.CaptureTimeoutMS) * time.Millisecond
}

// DrainTimeout returns the job-level background drain timeout.
func (p *Profile) DrainTimeout() time.Duration {
	return time.Duration(p.DrainTimeoutMS) * time.Millisecond
}

// LightDwell returns the stabilization delay after a light change.
func (p *Profile) LightDwell() time.Duration {
	return time.Duration(p.LightDwellMS) * time.Millisecond
}
