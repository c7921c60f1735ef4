package transport

import "sync"

// Mailbox is an unbounded event queue drained into a channel by a single pump
// goroutine. Push never blocks, so transports can publish events while holding
// their own locks.
type Mailbox struct {
	mu     sync.Mutex
	queue  []Event
	closed bool
	signal chan struct{}
	done   chan struct{}
	out    chan Event
}

func NewMailbox() *Mailbox {
	m := &Mailbox{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan Event),
	}
	go m.pump()
	return m
}

// Push enqueues ev. It reports false once the mailbox is closed.
func (m *Mailbox) Push(ev Event) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, ev)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

func (m *Mailbox) Events() <-chan Event {
	return m.out
}

// Close stops the pump. Queued events that were not yet received are dropped
// and the events channel is closed.
func (m *Mailbox) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
	close(m.done)
}

func (m *Mailbox) pump() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			select {
			case <-m.signal:
				continue
			case <-m.done:
				return
			}
		}
		ev := m.queue[0]
		m.queue[0] = Event{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.out <- ev:
		case <-m.done:
			return
		}
	}
}
