// Package memnet is an in-process transport. Peers registered on the same
// Network can reach each other by identity; messages are copied between
// mailboxes and never touch a socket.
package memnet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/danmuck/statewarp/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Network is a registry of started peers.
type Network struct {
	mu    sync.Mutex
	peers map[string]*Peer
}

func NewNetwork() *Network {
	return &Network{peers: make(map[string]*Peer)}
}

// Peer returns a new unstarted peer attached to the network.
func (n *Network) Peer() *Peer {
	return &Peer{
		network: n,
		mbox:    transport.NewMailbox(),
		conns:   make(map[*conn]struct{}),
		log:     log.Logger.With().Str("component", "memnet").Logger(),
	}
}

// Len reports how many peers are registered.
func (n *Network) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.peers)
}

func (n *Network) register(id string, p *Peer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.peers[id]; ok {
		return fmt.Errorf("%w: %q", transport.ErrIdentityTaken, id)
	}
	n.peers[id] = p
	return nil
}

func (n *Network) unregister(id string, p *Peer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.peers[id] == p {
		delete(n.peers, id)
	}
}

func (n *Network) lookup(id string) (*Peer, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.peers[id]
	return p, ok
}

type Peer struct {
	network *Network
	mbox    *transport.Mailbox
	log     zerolog.Logger

	mu      sync.Mutex
	id      string
	started bool
	closed  bool
	conns   map[*conn]struct{}
}

var _ transport.Peer = (*Peer)(nil)

func (p *Peer) Start(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return transport.ErrClosed
	}
	if p.started {
		return fmt.Errorf("memnet: peer %q already started", p.id)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	if err := p.network.register(id, p); err != nil {
		return err
	}
	p.id = id
	p.started = true
	p.log = p.log.With().Str("peer", id).Logger()
	p.log.Debug().Msg("memnet.Peer.Start registered")
	p.mbox.Push(transport.Event{Kind: transport.EventIdentity, ID: id})
	return nil
}

func (p *Peer) Events() <-chan transport.Event {
	return p.mbox.Events()
}

// ID returns the registered identity, or "" before Start.
func (p *Peer) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// Connect fails fast when target is not registered; otherwise both ends are
// opened before it returns.
func (p *Peer) Connect(ctx context.Context, target string) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, transport.ErrClosed
	}
	if !p.started {
		p.mu.Unlock()
		return nil, transport.ErrNotStarted
	}
	localID := p.id
	p.mu.Unlock()

	remote, ok := p.network.lookup(strings.TrimSpace(target))
	if !ok || remote == p {
		return nil, fmt.Errorf("%w: %q", transport.ErrPeerUnavailable, target)
	}

	local := &conn{owner: p, remoteID: remote.ID()}
	far := &conn{owner: remote, remoteID: localID}
	local.peer, far.peer = far, local

	if !p.track(local) {
		return nil, transport.ErrClosed
	}
	if !remote.track(far) {
		p.untrack(local)
		return nil, fmt.Errorf("%w: %q", transport.ErrPeerUnavailable, target)
	}

	// The dialer must see its open before anything the remote sends back.
	p.mbox.Push(transport.Event{Kind: transport.EventOpen, Conn: local})
	remote.mbox.Push(transport.Event{Kind: transport.EventInbound, Conn: far})
	remote.mbox.Push(transport.Event{Kind: transport.EventOpen, Conn: far})
	p.log.Debug().Str("remote", remote.ID()).Msg("memnet.Peer.Connect opened")
	return local, nil
}

func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	id := p.id
	conns := make([]*conn, 0, len(p.conns))
	for c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	if id != "" {
		p.network.unregister(id, p)
	}
	p.mbox.Close()
	p.log.Debug().Msg("memnet.Peer.Close done")
	return nil
}

func (p *Peer) track(c *conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.conns[c] = struct{}{}
	return true
}

func (p *Peer) untrack(c *conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, c)
}

// conn is one end of an in-process connection pair.
type conn struct {
	owner    *Peer
	peer     *conn
	remoteID string
	closed   atomic.Bool
}

func (c *conn) RemoteID() string {
	return c.remoteID
}

func (c *conn) Send(msg []byte) error {
	if c.closed.Load() {
		return transport.ErrNotOpen
	}
	buf := make([]byte, len(msg))
	copy(buf, msg)
	if !c.peer.owner.mbox.Push(transport.Event{Kind: transport.EventData, Conn: c.peer, Data: buf}) {
		return transport.ErrNotOpen
	}
	return nil
}

// Close closes both ends. Only the far side observes EventClose.
func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.owner.untrack(c)
	if c.peer.closed.CompareAndSwap(false, true) {
		c.peer.owner.untrack(c.peer)
		c.peer.owner.mbox.Push(transport.Event{Kind: transport.EventClose, Conn: c.peer})
	}
	return nil
}
