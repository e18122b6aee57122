package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inspection-orchestrator/core/fault"
)

type fakeCamera struct {
	name      string
	connected bool

	mu       sync.Mutex
	calls    int
	timeouts int // fail this many leading calls with ErrTimeout
	failWith error
}

func (c *fakeCamera) Name() string    { return c.name }
func (c *fakeCamera) Connected() bool { return c.connected }

func (c *fakeCamera) Capture(ctx context.Context, timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.timeouts > 0 {
		c.timeouts--
		return nil, ErrTimeout
	}
	if c.failWith != nil {
		return nil, c.failWith
	}
	return []byte("frame"), nil
}

func (c *fakeCamera) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeLight struct {
	mu    sync.Mutex
	sets  []int
	fail  bool
	alive bool
}

func (l *fakeLight) Reachable() bool { return l.alive }

func (l *fakeLight) SetCurrent(channel string, milliamps int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return errors.New("nack")
	}
	l.sets = append(l.sets, milliamps)
	return nil
}

func (l *fakeLight) setCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sets)
}

func TestCaptureRetriesTimeoutOnce(t *testing.T) {
	cam := &fakeCamera{name: "top", connected: true, timeouts: 1}
	s := NewScheduler(nil, 100*time.Millisecond, 0)
	s.Register(cam)

	frame, err := s.Capture(context.Background(), "top")
	require.NoError(t, err)
	require.Equal(t, []byte("frame"), frame)
	require.Equal(t, 2, cam.callCount())
}

func TestCaptureFailsAfterSecondTimeout(t *testing.T) {
	cam := &fakeCamera{name: "top", connected: true, timeouts: 2}
	s := NewScheduler(nil, 100*time.Millisecond, 0)
	s.Register(cam)

	_, err := s.Capture(context.Background(), "top")
	require.Error(t, err)
	require.True(t, fault.Is(err, fault.KindCameraTimeout))
	// Exactly one retry, never more.
	require.Equal(t, 2, cam.callCount())
}

func TestCaptureNonTimeoutErrorIsNotRetried(t *testing.T) {
	cam := &fakeCamera{name: "top", connected: true, failWith: errors.New("bus reset")}
	s := NewScheduler(nil, 100*time.Millisecond, 0)
	s.Register(cam)

	_, err := s.Capture(context.Background(), "top")
	require.Error(t, err)
	require.Equal(t, 1, cam.callCount())
}

func TestCaptureUnknownRoleFails(t *testing.T) {
	s := NewScheduler(nil, 100*time.Millisecond, 0)

	_, err := s.Capture(context.Background(), "side")
	require.Error(t, err)
	require.True(t, fault.Is(err, fault.KindCameraTimeout))
}

func TestCaptureDisconnectedCameraFails(t *testing.T) {
	cam := &fakeCamera{name: "top", connected: false}
	s := NewScheduler(nil, 100*time.Millisecond, 0)
	s.Register(cam)

	_, err := s.Capture(context.Background(), "top")
	require.Error(t, err)
	require.Equal(t, 0, cam.callCount())
}

func TestLightAppliedOnlyOnChange(t *testing.T) {
	cam := &fakeCamera{name: "front", connected: true}
	lt := &fakeLight{alive: true}
	s := NewScheduler(lt, 100*time.Millisecond, 0)
	s.Register(cam)
	s.SetCurrent("front", 300)

	_, err := s.Capture(context.Background(), "front")
	require.NoError(t, err)
	_, err = s.Capture(context.Background(), "front")
	require.NoError(t, err)
	// Same current: one SetCurrent for the two captures.
	require.Equal(t, 1, lt.setCount())

	s.SetCurrent("front", 450)
	_, err = s.Capture(context.Background(), "front")
	require.NoError(t, err)
	require.Equal(t, 2, lt.setCount())
}

func TestLightFailureIsAdvisory(t *testing.T) {
	cam := &fakeCamera{name: "front", connected: true}
	lt := &fakeLight{alive: true, fail: true}
	s := NewScheduler(lt, 100*time.Millisecond, 0)
	s.Register(cam)
	s.SetCurrent("front", 300)

	frame, err := s.Capture(context.Background(), "front")
	require.NoError(t, err)
	require.NotEmpty(t, frame)
}

func TestDwellAppliesOnlyWhenCurrentChanged(t *testing.T) {
	cam := &fakeCamera{name: "front", connected: true}
	lt := &fakeLight{alive: true}
	dwell := 60 * time.Millisecond
	s := NewScheduler(lt, 100*time.Millisecond, dwell)
	s.Register(cam)
	s.SetCurrent("front", 300)

	start := time.Now()
	_, err := s.Capture(context.Background(), "front")
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), dwell)

	start = time.Now()
	_, err = s.Capture(context.Background(), "front")
	require.NoError(t, err)
	require.Less(t, time.Since(start), dwell)
}
