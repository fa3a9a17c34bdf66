package master

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue() *DispatchQueue {
	logger := logrus.New()
	logger.Out = io.Discard
	return NewDispatchQueue(logger, time.Millisecond, 0)
}

func TestDispatchQueue_RunsCallbacksInArrivalOrder(t *testing.T) {
	q := newTestQueue()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		i := i
		q.Enqueue(func() {
			mu.Lock()
			order = append(order, i)
			if len(order) == 10 {
				close(done)
			}
			mu.Unlock()
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("queue never drained")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestDispatchQueue_PanickedCallbackDoesNotStopDraining(t *testing.T) {
	q := newTestQueue()

	ran := make(chan struct{})
	q.Enqueue(func() { panic("handler bug") })
	q.Enqueue(func() { close(ran) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("callback after the panic never ran")
	}
}

func TestDispatchQueue_FinalDrainOnCancel(t *testing.T) {
	q := newTestQueue()

	ran := make(chan struct{})
	q.Enqueue(func() { close(ran) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Run(ctx)

	select {
	case <-ran:
	default:
		t.Fatal("queued callback lost on shutdown")
	}
	require.Equal(t, 0, q.Depth())
}

func TestDispatchQueue_SelfEnqueueWaitsForNextTick(t *testing.T) {
	q := newTestQueue()

	var reenqueued bool
	q.Enqueue(func() {
		q.Enqueue(func() { reenqueued = true })
	})

	// A single manual drain must run only the first callback.
	q.drain()
	assert.False(t, reenqueued)
	assert.Equal(t, 1, q.Depth())

	q.drain()
	assert.True(t, reenqueued)
}
