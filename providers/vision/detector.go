//go:build gocv
// +build gocv

package vision

import (
	"context"
	"errors"
	"image"
	"path/filepath"

	"gocv.io/x/gocv"

	"inspection-orchestrator/core/fault"
	"inspection-orchestrator/core/models"
)

// DNNDetector runs an ONNX detection model through the OpenCV DNN module.
// Infer is not safe for concurrent invocation; the background pool's
// single worker is the only caller during a job.
type DNNDetector struct {
	meta *ModelMetadata
	net  gocv.Net
	size int
}

// NewDNNDetector loads a model bundle: <dir>/model.onnx plus the
// validated metadata.
func NewDNNDetector(dir string) (*DNNDetector, error) {
	meta, err := LoadMetadata(dir)
	if err != nil {
		return nil, err
	}

	modelPath := filepath.Join(dir, "model.onnx")
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fault.New(fault.KindModelLoad, "model", "failed to load network from %s", modelPath)
	}

	size := meta.InputSize
	if size <= 0 {
		size = 640
	}
	return &DNNDetector{meta: meta, net: net, size: size}, nil
}

// Name returns the bundle name.
func (d *DNNDetector) Name() string {
	return d.meta.Name
}

// Loaded reports whether the network is ready.
func (d *DNNDetector) Loaded() bool {
	return !d.net.Empty()
}

// Close releases the network.
func (d *DNNDetector) Close() error {
	return d.net.Close()
}

// Infer runs one forward pass and decodes the detections into image
// coordinates. Scores are raw model confidences; stage thresholds are
// applied by the caller.
func (d *DNNDetector) Infer(ctx context.Context, imageData []byte) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err != nil || mat.Empty() {
		if !mat.Empty() {
			mat.Close()
		}
		return nil, errors.New("failed to decode image")
	}
	defer mat.Close()

	scaleX := float64(mat.Cols()) / float64(d.size)
	scaleY := float64(mat.Rows()) / float64(d.size)

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(d.size, d.size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	// Output layout: rows of [cx, cy, w, h, score, angle, class scores...].
	rows := out.Size()[1]
	cols := out.Size()[2]
	flat, err := out.DataPtrFloat32()
	if err != nil {
		return nil, err
	}

	var dets []models.Detection
	for i := 0; i < rows; i++ {
		row := flat[i*cols : (i+1)*cols]
		score := float64(row[4])
		if score <= 0 {
			continue
		}

		classIdx := 0
		classBest := float32(0)
		for c := 6; c < cols; c++ {
			if row[c] > classBest {
				classBest = row[c]
				classIdx = c - 6
			}
		}
		if classIdx >= len(d.meta.Classes) {
			continue
		}

		w := float64(row[2]) * scaleX
		h := float64(row[3]) * scaleY
		dets = append(dets, models.Detection{
			Class: d.meta.Classes[classIdx],
			Score: score,
			Box: models.BoundingBox{
				X:      float64(row[0])*scaleX - w/2,
				Y:      float64(row[1])*scaleY - h/2,
				Width:  w,
				Height: h,
			},
			Phi: float64(row[5]),
		})
	}
	return dets, nil
}
