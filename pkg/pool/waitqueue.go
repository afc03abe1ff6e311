package pool

import (
	"container/list"
	"time"
)

// grant settles a waiter: exactly one of conn and err is set.
type grant struct {
	conn *Conn
	err  error
}

// waiter is a parked Acquire. ch has room for one grant so the pool can
// settle it without blocking while holding its mutex.
type waiter struct {
	ch       chan grant
	enqueued time.Time
	timer    *time.Timer
	elem     *list.Element
}

// waitQueue is the FIFO of parked acquires. It is not safe for concurrent
// use; the pool guards it with its mutex, and the timeout callback must take
// that mutex before calling back into the queue.
type waitQueue struct {
	l *list.List
}

func newWaitQueue() *waitQueue {
	return &waitQueue{l: list.New()}
}

// enqueue appends a waiter whose onTimeout fires after timeout unless the
// waiter is granted or removed first.
func (q *waitQueue) enqueue(timeout time.Duration, onTimeout func(*waiter)) *waiter {
	w := &waiter{
		ch:       make(chan grant, 1),
		enqueued: time.Now(),
	}
	w.elem = q.l.PushBack(w)
	w.timer = time.AfterFunc(timeout, func() { onTimeout(w) })
	return w
}

// remove takes w out of the queue and cancels its timeout. It reports false
// if w was already granted, rejected or removed.
func (q *waitQueue) remove(w *waiter) bool {
	if w.elem == nil {
		return false
	}
	q.l.Remove(w.elem)
	w.elem = nil
	w.timer.Stop()
	return true
}

// dequeueAndGrant hands c to the head waiter. It reports false when nobody
// is waiting.
func (q *waitQueue) dequeueAndGrant(c *Conn) bool {
	front := q.l.Front()
	if front == nil {
		return false
	}
	w := front.Value.(*waiter)
	q.remove(w)
	w.ch <- grant{conn: c}
	return true
}

// settle removes w and delivers err to it. It reports false if w was no
// longer queued.
func (q *waitQueue) settle(w *waiter, err error) bool {
	if !q.remove(w) {
		return false
	}
	w.ch <- grant{err: err}
	return true
}

// rejectAll fails every waiter with err and returns how many there were.
func (q *waitQueue) rejectAll(err error) int {
	n := 0
	for q.l.Len() > 0 {
		w := q.l.Front().Value.(*waiter)
		q.settle(w, err)
		n++
	}
	return n
}

func (q *waitQueue) len() int {
	return q.l.Len()
}

// oldest returns how long the head waiter has been queued.
func (q *waitQueue) oldest(now time.Time) time.Duration {
	front := q.l.Front()
	if front == nil {
		return 0
	}
	return now.Sub(front.Value.(*waiter).enqueued)
}
