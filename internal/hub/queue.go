package hub

import (
	"sync"

	"screener-stream/internal/model"
)

// queue is a bounded ring of pending updates for one subscriber. When
// full, push evicts the oldest entry so the newest state always gets
// through. A mutex guards the indices because eviction moves the
// consumer side from the producer.
type queue struct {
	mu      sync.Mutex
	buf     []model.Update
	head    int
	count   int
	dropped uint64

	// notify wakes the pump after a push; buffered so push never blocks.
	notify chan struct{}
}

func newQueue(capacity int) *queue {
	if capacity < 1 {
		capacity = 1
	}
	return &queue{
		buf:    make([]model.Update, capacity),
		notify: make(chan struct{}, 1),
	}
}

// push enqueues an update, evicting the oldest entry when full.
// It never blocks. Returns false when an eviction happened.
func (q *queue) push(u model.Update) bool {
	q.mu.Lock()
	evicted := false
	if q.count == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		q.dropped++
		evicted = true
	}
	q.buf[(q.head+q.count)%len(q.buf)] = u
	q.count++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return !evicted
}

// pop removes the oldest pending update. Non-blocking.
func (q *queue) pop() (model.Update, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return model.Update{}, false
	}
	u := q.buf[q.head]
	q.buf[q.head] = model.Update{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return u, true
}

func (q *queue) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
