package master

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DispatchQueue serializes all server state mutation onto one goroutine.
// Read loops, spawn watchers, and timers enqueue callbacks; the drain
// loop runs them in arrival order at a fixed tick rate. The queue is
// unbounded: a dropped callback would be a dropped state transition, so
// depth past the warn threshold is logged instead of shed.
type DispatchQueue struct {
	logger    *logrus.Logger
	interval  time.Duration
	warnDepth int

	mu  sync.Mutex
	fns []func()
}

func NewDispatchQueue(logger *logrus.Logger, interval time.Duration, warnDepth int) *DispatchQueue {
	return &DispatchQueue{
		logger:    logger,
		interval:  interval,
		warnDepth: warnDepth,
	}
}

// Enqueue appends a callback for the next drain. Safe to call from any
// goroutine, including from a callback already running on the drain loop.
func (q *DispatchQueue) Enqueue(f func()) {
	q.mu.Lock()
	q.fns = append(q.fns, f)
	depth := len(q.fns)
	q.mu.Unlock()

	if q.warnDepth > 0 && depth > q.warnDepth {
		q.logger.Errorf("dispatch queue depth %d exceeds %d; server is falling behind", depth, q.warnDepth)
	}
}

// Run drains the queue every tick until the context is canceled, then
// performs one final drain so already-queued work is not lost.
func (q *DispatchQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.drain()
			return
		case <-ticker.C:
			q.drain()
		}
	}
}

// drain runs every callback queued at the start of the pass. Callbacks
// enqueued while draining wait for the next tick, which keeps a
// self-enqueueing callback from starving the loop.
func (q *DispatchQueue) drain() {
	q.mu.Lock()
	fns := q.fns
	q.fns = nil
	q.mu.Unlock()

	for _, f := range fns {
		q.run(f)
	}
}

func (q *DispatchQueue) run(f func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Errorf("recovered from panic in dispatched callback: %v", r)
		}
	}()
	f()
}

// Depth reports the callbacks waiting for the next drain.
func (q *DispatchQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fns)
}
