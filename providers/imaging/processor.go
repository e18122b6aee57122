//go:build !gocv
// +build !gocv

// Package imaging implements the image operations the workflow needs:
// center cropping, detection overlays and padded box extraction. The
// OpenCV build draws through gocv; this build uses the standard image
// packages so the cell can run anywhere.
package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"inspection-orchestrator/core/models"
)

// Processor implements the workflow's ImageProcessor on PNG frames.
type Processor struct{}

// NewProcessor creates a processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// CenterCrop returns the centered square crop of the given side length.
// The crop is clamped to the frame when the frame is smaller.
func (p *Processor) CenterCrop(imageData []byte, size int) ([]byte, error) {
	src, err := decode(imageData)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()

	w, h := size, size
	if w > b.Dx() {
		w = b.Dx()
	}
	if h > b.Dy() {
		h = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), src, image.Pt(x0, y0), draw.Src)
	return encode(out)
}

// Annotate draws detection rectangles with score-independent line width.
func (p *Processor) Annotate(imageData []byte, dets []models.Detection) ([]byte, error) {
	src, err := decode(imageData)
	if err != nil {
		return nil, err
	}
	out := image.NewRGBA(src.Bounds())
	draw.Draw(out, out.Bounds(), src, src.Bounds().Min, draw.Src)

	green := color.RGBA{G: 255, A: 255}
	for _, d := range dets {
		r := image.Rect(int(d.Box.X), int(d.Box.Y), int(d.Box.X+d.Box.Width), int(d.Box.Y+d.Box.Height))
		drawRect(out, r.Intersect(out.Bounds()), green, 3)
	}
	return encode(out)
}

// CropBox extracts the padded bounding-box region, clamped to the frame.
func (p *Processor) CropBox(imageData []byte, box models.BoundingBox, pad int) ([]byte, error) {
	src, err := decode(imageData)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()

	r := image.Rect(
		int(box.X)-pad,
		int(box.Y)-pad,
		int(box.X+box.Width)+pad,
		int(box.Y+box.Height)+pad,
	).Intersect(b)
	if r.Empty() {
		return nil, errors.New("box outside image bounds")
	}

	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), src, r.Min, draw.Src)
	return encode(out)
}

func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New("failed to decode image")
	}
	return img, nil
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawRect(img *image.RGBA, r image.Rectangle, c color.RGBA, width int) {
	for i := 0; i < width; i++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			setPx(img, x, r.Min.Y+i, c)
			setPx(img, x, r.Max.Y-1-i, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			setPx(img, r.Min.X+i, y, c)
			setPx(img, r.Max.X-1-i, y, c)
		}
	}
}

func setPx(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}
