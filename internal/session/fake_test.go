package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/statewarp/internal/protocol/envelope"
	"github.com/danmuck/statewarp/internal/transport"
)

// fakePeer is a scripted transport: the test pushes events by hand.
type fakePeer struct {
	events chan transport.Event

	mu         sync.Mutex
	startID    string
	startErr   error
	connectErr error
	targets    []string
	conns      []*fakeConn
	closed     bool
}

func newFakePeer() *fakePeer {
	return &fakePeer{events: make(chan transport.Event, 64)}
}

func (f *fakePeer) Start(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startID = id
	return f.startErr
}

func (f *fakePeer) Events() <-chan transport.Event {
	return f.events
}

func (f *fakePeer) Connect(_ context.Context, target string) (transport.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	c := newFakeConn(target)
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakePeer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePeer) push(ev transport.Event) {
	f.events <- ev
}

func (f *fakePeer) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePeer) lastConn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

type fakeConn struct {
	remote string
	sent   chan []byte

	mu     sync.Mutex
	closed bool
}

func newFakeConn(remote string) *fakeConn {
	return &fakeConn{remote: remote, sent: make(chan []byte, 64)}
}

func (c *fakeConn) RemoteID() string {
	return c.remote
}

func (c *fakeConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrNotOpen
	}
	c.sent <- append([]byte(nil), msg...)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// statusLog records OnStatus transitions.
type statusLog struct {
	mu   sync.Mutex
	seen []Status
}

func (l *statusLog) record(st Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, st)
}

func (l *statusLog) snapshot() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Status(nil), l.seen...)
}

func (l *statusLog) contains(st Status) bool {
	for _, s := range l.snapshot() {
		if s == st {
			return true
		}
	}
	return false
}

// syncLog records OnSync values.
type syncLog struct {
	mu     sync.Mutex
	values []any
}

func (l *syncLog) record(v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values = append(l.values, v)
}

func (l *syncLog) snapshot() []any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]any(nil), l.values...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitStatus(t *testing.T, s *Session, want Status) {
	t.Helper()
	waitFor(t, "status "+want.String(), func() bool { return s.Status() == want })
}

func expectSent(t *testing.T, c *fakeConn) envelope.Envelope {
	t.Helper()
	select {
	case b := <-c.sent:
		env, err := envelope.Unmarshal(b)
		if err != nil {
			t.Fatalf("unmarshal sent envelope: %v", err)
		}
		return env
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for sent envelope")
	}
	return envelope.Envelope{}
}

func expectNothingSent(t *testing.T, c *fakeConn, wait time.Duration) {
	t.Helper()
	select {
	case b := <-c.sent:
		t.Fatalf("unexpected envelope sent: %d bytes", len(b))
	case <-time.After(wait):
	}
}

func syncWire(t *testing.T, seq uint64, v any) []byte {
	t.Helper()
	env, err := envelope.NewSync(context.Background(), seq, v)
	if err != nil {
		t.Fatalf("new sync: %v", err)
	}
	b, err := envelope.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
