// Package camera provides still-image camera adapters. The simulated
// camera renders synthetic frames so the cell can run without hardware.
package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"inspection-orchestrator/core/capture"
)

// SimCamera is a simulated still camera producing gray PNG frames.
type SimCamera struct {
	name      string
	width     int
	height    int
	mu        sync.Mutex
	connected bool
	frames    int

	// Latency delays every capture; zero means instant frames.
	Latency time.Duration
	// TimeoutNext forces the next capture to time out and clears itself,
	// mimicking a dropped trigger.
	TimeoutNext int
}

// NewSimCamera creates a connected simulated camera with the sensor size
// of the given role.
func NewSimCamera(name string, width, height int) *SimCamera {
	return &SimCamera{name: name, width: width, height: height, connected: true}
}

// Name returns the camera role name.
func (c *SimCamera) Name() string {
	return c.name
}

// Connected reports device connectivity.
func (c *SimCamera) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnect drops the simulated link.
func (c *SimCamera) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

// ForceTimeouts makes the next n capture attempts time out.
func (c *SimCamera) ForceTimeouts(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TimeoutNext = n
}

// Capture renders one frame. Honors the bounded wait: a forced timeout or
// a latency longer than the timeout returns capture.ErrTimeout.
func (c *SimCamera) Capture(ctx context.Context, timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	if c.TimeoutNext > 0 {
		c.TimeoutNext--
		c.mu.Unlock()
		return nil, capture.ErrTimeout
	}
	c.frames++
	shade := uint8(96 + c.frames%64)
	c.mu.Unlock()

	if c.Latency > 0 {
		if c.Latency > timeout {
			return nil, capture.ErrTimeout
		}
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	bg := color.RGBA{R: shade, G: shade, B: shade, A: 255}
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			img.SetRGBA(x, y, bg)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
