//go:build !gocv
// +build !gocv

package vision

import (
	"context"
	"errors"

	"inspection-orchestrator/core/models"
)

// DNNDetector is the no-OpenCV build of the DNN backend. Loading the
// metadata still validates the bundle; inference is unavailable.
type DNNDetector struct {
	meta *ModelMetadata
}

// NewDNNDetector validates the bundle metadata without loading a network.
func NewDNNDetector(dir string) (*DNNDetector, error) {
	meta, err := LoadMetadata(dir)
	if err != nil {
		return nil, err
	}
	return &DNNDetector{meta: meta}, nil
}

// Name returns the bundle name.
func (d *DNNDetector) Name() string {
	return d.meta.Name
}

// Loaded always reports false without the gocv build tag.
func (d *DNNDetector) Loaded() bool {
	return false
}

// Close is a no-op.
func (d *DNNDetector) Close() error {
	return nil
}

// Infer returns an error: this build has no inference backend.
func (d *DNNDetector) Infer(ctx context.Context, imageData []byte) ([]models.Detection, error) {
	_ = ctx
	_ = imageData
	return nil, errors.New("gocv build tag is not enabled")
}
