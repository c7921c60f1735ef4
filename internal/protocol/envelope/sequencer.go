package envelope

import (
	"sync"
	"time"
)

// Pending is one outbound envelope whose encode step has finished.
// Err is set when encoding failed; the slot is still released in order.
type Pending struct {
	Seq      uint64
	Wire     []byte
	Err      error
	QueuedAt time.Time
}

// Sequencer reorders encode completions so envelopes leave in seq order.
type Sequencer struct {
	mu    sync.Mutex
	next  uint64
	items map[uint64]Pending
}

func NewSequencer(first uint64) *Sequencer {
	return &Sequencer{
		next:  first,
		items: make(map[uint64]Pending),
	}
}

// Put stores item and returns every entry that is now releasable, in order.
// Entries below the release cursor are dropped.
func (s *Sequencer) Put(item Pending) []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.Seq < s.next {
		return nil
	}
	s.items[item.Seq] = item

	var ready []Pending
	for {
		next, ok := s.items[s.next]
		if !ok {
			break
		}
		delete(s.items, s.next)
		ready = append(ready, next)
		s.next++
	}
	return ready
}

// Next is the seq the sequencer is waiting for.
func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Len is the number of entries held behind a missing seq.
func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
