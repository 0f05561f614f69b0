package motorbridge

import "sync"

// writeQueue is a bounded, single-slot, newest-wins mailbox: a command
// enqueued while one is already pending replaces it rather than
// blocking the enqueuer or growing without bound (spec §4.3: "if the
// queue is full, the oldest pending write is dropped").
type writeQueue struct {
	mu      sync.Mutex
	pending *Direction
	notify  chan struct{}
}

func newWriteQueue() *writeQueue {
	return &writeQueue{notify: make(chan struct{}, 1)}
}

// Enqueue stores d as the pending command, returning true if it
// overwrote a not-yet-written command.
func (q *writeQueue) Enqueue(d Direction) (dropped bool) {
	q.mu.Lock()
	dropped = q.pending != nil
	q.pending = &d
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Dequeue removes and returns the pending command, if any.
func (q *writeQueue) Dequeue() (Direction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == nil {
		return "", false
	}
	d := *q.pending
	q.pending = nil
	return d, true
}

// Notify returns the channel that receives a signal whenever a new
// command is enqueued.
func (q *writeQueue) Notify() <-chan struct{} { return q.notify }
