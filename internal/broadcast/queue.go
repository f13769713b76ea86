package broadcast

import "sync"

// queue is a bounded FIFO that drops its oldest item when full.
type queue struct {
	mu     sync.Mutex
	items  []Event
	max    int
	notify chan struct{}
}

func newQueue(size int) *queue {
	if size < 1 {
		size = 1
	}
	return &queue{max: size, notify: make(chan struct{}, 1)}
}

// push appends e and reports whether an older event was dropped to make room.
func (q *queue) push(e Event) (dropped bool) {
	q.mu.Lock()
	if len(q.items) >= q.max {
		copy(q.items, q.items[1:])
		q.items[len(q.items)-1] = e
		dropped = true
	} else {
		q.items = append(q.items, e)
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

// drain removes and returns everything queued.
func (q *queue) drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
