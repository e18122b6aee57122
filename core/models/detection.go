package models

import "math"

// Point is a position in image pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is an axis-aligned box in image pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the box.
func (b BoundingBox) Center() Point {
	return Point{X: b.X + b.Width/2.0, Y: b.Y + b.Height/2.0}
}

// Area returns the box area in square pixels.
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// Detection is one detected feature in an image.
// Index values are assigned once when the detection is accepted and are
// never renumbered; visitation ordering only changes traversal order.
type Detection struct {
	Index int         `json:"index"` // 1-based, order-stable
	Class string      `json:"class"`
	Score float64     `json:"score"` // 0-1
	Box   BoundingBox `json:"box"`
	Phi   float64     `json:"phi"` // orientation angle, radians, image-space
}

// Center returns the detection center in image pixels.
func (d Detection) Center() Point {
	return d.Box.Center()
}

// PhiDegrees returns the orientation angle in degrees.
func (d Detection) PhiDegrees() float64 {
	return d.Phi * 180.0 / math.Pi
}

// DefectFinding is one classified defect on an attachment.
type DefectFinding struct {
	Class string      `json:"class"`
	Score float64     `json:"score"`
	Area  float64     `json:"area"` // pixel area
	Box   BoundingBox `json:"box"`
}
