//go:build gocv
// +build gocv

package imaging

import (
	"errors"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"inspection-orchestrator/core/models"
)

// Processor implements the workflow's ImageProcessor through OpenCV.
type Processor struct{}

// NewProcessor creates a processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// CenterCrop returns the centered square crop of the given side length.
func (p *Processor) CenterCrop(imageData []byte, size int) ([]byte, error) {
	mat, err := decodeToMat(imageData)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	w, h := size, size
	if w > mat.Cols() {
		w = mat.Cols()
	}
	if h > mat.Rows() {
		h = mat.Rows()
	}
	x0 := (mat.Cols() - w) / 2
	y0 := (mat.Rows() - h) / 2

	region := mat.Region(image.Rect(x0, y0, x0+w, y0+h))
	defer region.Close()
	return encodeMat(region)
}

// Annotate draws detection rectangles onto a copy of the frame.
func (p *Processor) Annotate(imageData []byte, dets []models.Detection) ([]byte, error) {
	mat, err := decodeToMat(imageData)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	green := color.RGBA{G: 255, A: 255}
	for _, d := range dets {
		r := image.Rect(int(d.Box.X), int(d.Box.Y), int(d.Box.X+d.Box.Width), int(d.Box.Y+d.Box.Height))
		gocv.Rectangle(&mat, r, green, 3)
	}
	return encodeMat(mat)
}

// CropBox extracts the padded bounding-box region, clamped to the frame.
func (p *Processor) CropBox(imageData []byte, box models.BoundingBox, pad int) ([]byte, error) {
	mat, err := decodeToMat(imageData)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	r := image.Rect(
		int(box.X)-pad,
		int(box.Y)-pad,
		int(box.X+box.Width)+pad,
		int(box.Y+box.Height)+pad,
	).Intersect(image.Rect(0, 0, mat.Cols(), mat.Rows()))
	if r.Empty() {
		return nil, errors.New("box outside image bounds")
	}

	region := mat.Region(r)
	defer region.Close()
	return encodeMat(region)
}

func decodeToMat(data []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err == nil && !mat.Empty() {
		return mat, nil
	}
	if !mat.Empty() {
		mat.Close()
	}
	return gocv.NewMat(), errors.New("failed to decode image")
}

func encodeMat(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(".png", mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
