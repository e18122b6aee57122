// Package pool implements the background processing pool: a strict
// single-worker FIFO task queue. The single worker is a correctness
// requirement, not a tuning choice — the shared inference engine is not
// safe for concurrent invocation, so overlap with hardware motion comes
// only from running inference while the orchestrator issues the next move.
package pool

import (
	"context"
	"log"
	"sync"
	"time"

	"inspection-orchestrator/core/fault"
)

// Task is one unit of queued work.
type Task struct {
	Name string

	fn   func(ctx context.Context) error
	done chan struct{}
	err  error

	mu        sync.Mutex
	abandoned bool
	cancel    context.CancelFunc
}

// Abandon asks the task to stop: a still-queued task is skipped, an
// in-flight task has its context cancelled. The worker itself keeps
// running either way.
func (t *Task) Abandon() {
	t.mu.Lock()
	t.abandoned = true
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done returns a channel closed when the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Finished reports whether the task has completed.
func (t *Task) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Err returns the task error after completion.
func (t *Task) Err() error {
	return t.err
}

// Wait blocks until the task finishes or ctx is cancelled.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pool is the single-worker task queue. Tasks execute in submission order.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Task
	pending int // queued plus in-flight
	stopped bool
}

// New creates a pool. There is deliberately no worker-count parameter.
func New() *Pool {
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start runs the worker until ctx is cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		p.Stop()
	}()
	go p.run(ctx)
}

// Stop wakes the worker and lets it exit once the current task returns.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Submit queues a task without blocking. The returned handle reports
// completion and error state.
func (p *Pool) Submit(name string, fn func(ctx context.Context) error) *Task {
	t := &Task{Name: name, fn: fn, done: make(chan struct{})}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		t.err = fault.New(fault.KindInference, "pool", "pool stopped; task %s rejected", name)
		close(t.done)
		return t
	}
	p.queue = append(p.queue, t)
	p.pending++
	p.mu.Unlock()
	p.cond.Broadcast()
	return t
}

// Pending returns the number of queued plus in-flight tasks.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Drain blocks until the queue is empty or the timeout elapses. On timeout
// the outstanding tasks are abandoned: the caller marks their records and
// proceeds, while the worker keeps running so a stuck inference cannot
// block job completion.
func (p *Pool) Drain(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, p.cond.Broadcast)
	defer timer.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.pending > 0 {
		if !time.Now().Before(deadline) {
			return fault.New(fault.KindInference, "pool", "drain timed out with %d task(s) outstanding", p.pending)
		}
		p.cond.Wait()
	}
	return nil
}

func (p *Pool) run(ctx context.Context) {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if p.stopped && len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		t.mu.Lock()
		if t.abandoned {
			t.err = fault.New(fault.KindInference, "pool", "task %s abandoned before start", t.Name)
			t.mu.Unlock()
		} else {
			tctx, cancel := context.WithCancel(ctx)
			t.cancel = cancel
			t.mu.Unlock()
			t.err = t.fn(tctx)
			cancel()
		}
		if t.err != nil {
			log.Printf("[pool] task %s failed: %v", t.Name, t.err)
		}
		close(t.done)

		p.mu.Lock()
		p.pending--
		p.mu.Unlock()
		p.cond.Broadcast()
	}
}
