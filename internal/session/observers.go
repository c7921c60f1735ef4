package session

import "sync"

// observerQueue runs observer callbacks one at a time, in the order they were
// queued, on its own goroutine. Neither the loop nor Close ever waits on user
// code, so an observer may call any Session method, Close included.
type observerQueue struct {
	mu     sync.Mutex
	items  []func()
	closed bool
	wake   chan struct{}
}

func newObserverQueue() *observerQueue {
	q := &observerQueue{wake: make(chan struct{}, 1)}
	go q.drain()
	return q
}

// push reports false once the queue is closed.
func (q *observerQueue) push(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()
	q.signal()
	return true
}

// close stops accepting callbacks. Already queued ones still run.
func (q *observerQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *observerQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *observerQueue) drain() {
	for {
		q.mu.Lock()
		items := q.items
		q.items = nil
		closed := q.closed
		q.mu.Unlock()

		for _, fn := range items {
			fn()
		}
		if len(items) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}
