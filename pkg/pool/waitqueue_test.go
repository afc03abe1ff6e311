package pool

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noTimeout(*waiter) {}

func TestWaitQueueGrantsInOrder(t *testing.T) {
	q := newWaitQueue()
	w1 := q.enqueue(time.Hour, noTimeout)
	w2 := q.enqueue(time.Hour, noTimeout)
	require.Equal(t, 2, q.len())

	c1, c2 := &Conn{id: 1}, &Conn{id: 2}
	assert.True(t, q.dequeueAndGrant(c1))
	assert.True(t, q.dequeueAndGrant(c2))
	assert.False(t, q.dequeueAndGrant(&Conn{id: 3}))

	assert.Same(t, c1, (<-w1.ch).conn)
	assert.Same(t, c2, (<-w2.ch).conn)
	assert.Equal(t, 0, q.len())
}

func TestWaitQueueRemoveIsExclusiveWithGrant(t *testing.T) {
	q := newWaitQueue()
	w := q.enqueue(time.Hour, noTimeout)

	require.True(t, q.dequeueAndGrant(&Conn{id: 1}))
	assert.False(t, q.remove(w))
	assert.False(t, q.settle(w, fmt.Errorf("late")))
	assert.Len(t, w.ch, 1)
}

func TestWaitQueueTimeoutFires(t *testing.T) {
	var mu sync.Mutex
	q := newWaitQueue()
	expired := make(chan struct{})

	mu.Lock()
	w := q.enqueue(20*time.Millisecond, func(w *waiter) {
		mu.Lock()
		defer mu.Unlock()
		if q.settle(w, fmt.Errorf("timeout")) {
			close(expired)
		}
	})
	mu.Unlock()

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("timeout callback did not fire")
	}

	g := <-w.ch
	assert.Nil(t, g.conn)
	assert.EqualError(t, g.err, "timeout")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, q.len())
}

func TestWaitQueueRejectAll(t *testing.T) {
	q := newWaitQueue()
	waiters := []*waiter{
		q.enqueue(time.Hour, noTimeout),
		q.enqueue(time.Hour, noTimeout),
		q.enqueue(time.Hour, noTimeout),
	}

	assert.Equal(t, 3, q.rejectAll(fmt.Errorf("shutdown")))
	assert.Equal(t, 0, q.len())
	for _, w := range waiters {
		g := <-w.ch
		assert.EqualError(t, g.err, "shutdown")
	}
}

func TestWaitQueueOldest(t *testing.T) {
	q := newWaitQueue()
	assert.Zero(t, q.oldest(time.Now()))

	w := q.enqueue(time.Hour, noTimeout)
	assert.Equal(t, 5*time.Second, q.oldest(w.enqueued.Add(5*time.Second)))
	q.remove(w)
}
