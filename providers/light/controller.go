// Package light provides the LED controller adapter. Light control is
// advisory for the cell: an unreachable controller degrades image quality
// but never blocks a job.
package light

import (
	"errors"
	"log"
	"sync"
)

// SimController is a simulated multi-channel LED controller.
type SimController struct {
	mu        sync.Mutex
	reachable bool
	currents  map[string]int

	// FailSet, when true, rejects SetCurrent calls while still reporting
	// reachable, mimicking a half-broken serial link.
	FailSet bool
}

// NewSimController creates a reachable controller with all channels off.
func NewSimController() *SimController {
	return &SimController{reachable: true, currents: make(map[string]int)}
}

// Reachable reports controller connectivity.
func (c *SimController) Reachable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reachable
}

// Drop marks the controller unreachable.
func (c *SimController) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reachable = false
}

// SetCurrent sets the drive current of one channel in milliamps.
func (c *SimController) SetCurrent(channel string, milliamps int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.reachable {
		return errors.New("light controller unreachable")
	}
	if c.FailSet {
		return errors.New("light controller rejected command")
	}
	c.currents[channel] = milliamps
	log.Printf("[light] channel %s set to %dmA", channel, milliamps)
	return nil
}

// Current returns the last applied current of a channel.
func (c *SimController) Current(channel string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currents[channel]
}
