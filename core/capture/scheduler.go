// Package capture requests still images from named cameras, optionally
// after a light-stabilization delay. Camera handles are owned by their
// adapters and never shared across threads.
package capture

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"inspection-orchestrator/core/fault"
)

// ErrTimeout is returned by camera adapters when no frame arrives within
// the bounded wait.
var ErrTimeout = errors.New("no frame within timeout")

// Camera is a still-image source.
type Camera interface {
	Name() string
	Connected() bool
	// Capture returns one encoded frame or ErrTimeout.
	Capture(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Light is the best-effort LED controller. Failures are advisory.
type Light interface {
	Reachable() bool
	SetCurrent(channel string, milliamps int) error
}

// Scheduler coordinates cameras and the light controller.
type Scheduler struct {
	mu      sync.Mutex
	cameras map[string]Camera
	light   Light

	timeout  time.Duration
	dwell    time.Duration
	currents map[string]int // requested current per camera role
	applied  map[string]int // last current actually set per channel
}

// NewScheduler creates a capture scheduler. The light may be nil when the
// cell runs without light control.
func NewScheduler(light Light, timeout, dwell time.Duration) *Scheduler {
	return &Scheduler{
		cameras:  make(map[string]Camera),
		light:    light,
		timeout:  timeout,
		dwell:    dwell,
		currents: make(map[string]int),
		applied:  make(map[string]int),
	}
}

// Register adds a camera under its role name ("top", "front").
func (s *Scheduler) Register(cam Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cameras[cam.Name()] = cam
}

// SetCurrent configures the light current applied before captures from the
// given camera role. Zero disables the change for that role.
func (s *Scheduler) SetCurrent(role string, milliamps int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currents[role] = milliamps
}

// Camera returns the registered camera for a role, or nil.
func (s *Scheduler) Camera(role string) Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameras[role]
}

// Capture grabs one frame from the named camera. The light current for the
// role is applied first (best-effort) and the dwell delay runs only when
// the current actually changed. A camera timeout is retried exactly once
// before the fault surfaces; the orchestrator never retries further.
func (s *Scheduler) Capture(ctx context.Context, role string) ([]byte, error) {
	cam := s.Camera(role)
	if cam == nil {
		return nil, fault.New(fault.KindCameraTimeout, "camera."+role, "no camera registered for role %q", role)
	}
	if !cam.Connected() {
		return nil, fault.New(fault.KindCameraTimeout, "camera."+role, "camera not connected")
	}

	if err := s.applyLight(ctx, role); err != nil {
		log.Printf("[capture] light adjust for %s skipped: %v", role, err)
	}

	frame, err := cam.Capture(ctx, s.timeout)
	if errors.Is(err, ErrTimeout) {
		log.Printf("[capture] %s timed out; retrying once", role)
		frame, err = cam.Capture(ctx, s.timeout)
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindCameraTimeout, "camera."+role, err)
	}
	return frame, nil
}

func (s *Scheduler) applyLight(ctx context.Context, role string) error {
	s.mu.Lock()
	light := s.light
	want, ok := s.currents[role]
	changed := ok && want > 0 && s.applied[role] != want
	if changed {
		s.applied[role] = want
	}
	dwell := s.dwell
	s.mu.Unlock()

	if light == nil || !changed {
		return nil
	}
	if err := light.SetCurrent(role, want); err != nil {
		s.mu.Lock()
		s.applied[role] = 0 // retry on the next capture
		s.mu.Unlock()
		return err
	}
	if dwell > 0 {
		select {
		case <-time.After(dwell):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
