// Package tcpnet is a direct TCP transport. Each peer listens on one address
// and is reachable at "<id>@<host:port>". A dialer opens a connection with a
// JSON-line hello; once accepted, messages travel as frames.
package tcpnet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/statewarp/internal/protocol/handshake"
	"github.com/danmuck/statewarp/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Peer struct {
	cfg  Config
	mbox *transport.Mailbox
	log  zerolog.Logger

	mu      sync.Mutex
	ln      net.Listener
	id      string
	started bool
	closed  bool
	conns   map[*conn]struct{}
}

var _ transport.Peer = (*Peer)(nil)

func New(cfg Config) *Peer {
	return &Peer{
		cfg:   cfg.WithDefaults(),
		mbox:  transport.NewMailbox(),
		conns: make(map[*conn]struct{}),
		log:   log.Logger.With().Str("component", "tcpnet").Logger(),
	}
}

// Start binds the listener and registers "<id>@<addr>" as the local identity.
func (p *Peer) Start(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if strings.Contains(id, "@") {
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, id)
	}
	if id == "" {
		id = uuid.NewString()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return transport.ErrClosed
	}
	if p.started {
		return fmt.Errorf("tcpnet: peer %q already started", p.id)
	}
	ln, err := net.Listen("tcp", p.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("tcpnet: listen %q: %w", p.cfg.ListenAddr, err)
	}
	addr := strings.TrimSpace(p.cfg.AdvertiseAddr)
	if addr == "" {
		addr = ln.Addr().String()
	}
	p.ln = ln
	p.id = FormatIdentity(id, addr)
	p.started = true
	p.log = p.log.With().Str("peer", p.id).Logger()
	p.log.Info().Str("listen", ln.Addr().String()).Msg("tcpnet.Peer.Start listening")

	p.mbox.Push(transport.Event{Kind: transport.EventIdentity, ID: p.id})
	go p.acceptLoop(ln)
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

// Addr returns the bound listener address, or nil before Start.
func (p *Peer) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ln == nil {
		return nil
	}
	return p.ln.Addr()
}

// Connect validates target and dials it in the background. The returned handle
// opens with EventOpen, or fails with a fatal EventError.
func (p *Peer) Connect(ctx context.Context, target string) (transport.Conn, error) {
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

	target = strings.TrimSpace(target)
	_, addr, err := ParseIdentity(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrPeerUnavailable, err)
	}

	dialCtx, cancel := context.WithCancel(ctx)
	c := &conn{owner: p, remoteID: target, cancel: cancel}
	if !p.track(c) {
		cancel()
		return nil, transport.ErrClosed
	}
	go p.dial(dialCtx, c, addr, localID)
	return c, nil
}

func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	ln := p.ln
	conns := make([]*conn, 0, len(p.conns))
	for c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	for _, c := range conns {
		_ = c.Close()
	}
	p.mbox.Close()
	p.log.Debug().Int("conns", len(conns)).Msg("tcpnet.Peer.Close done")
	return err
}

func (p *Peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Peer) localID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// tcpnet accept loop for inbound peers on the bound listener.
func (p *Peer) acceptLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if p.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			p.log.Warn().Err(err).Msg("tcpnet.acceptLoop accept failed")
			p.mbox.Push(transport.Event{
				Kind: transport.EventError,
				Err:  fmt.Errorf("tcpnet: accept: %w", err),
			})
			return
		}
		go p.handleInbound(nc)
	}
}

// tcpnet inbound handler: hello, ack, then frames.
func (p *Peer) handleInbound(nc net.Conn) {
	remote := nc.RemoteAddr().String()
	_ = nc.SetDeadline(time.Now().Add(p.cfg.HandshakeTimeout))
	reader := bufio.NewReader(nc)
	localID := p.localID()

	hello, ack := p.handleHello(reader, localID)
	if !ack.Accepted() {
		p.log.Warn().
			Str("remote", remote).
			Uint32("code", ack.Code).
			Str("reason", ack.Message).
			Msg("tcpnet.handleInbound rejected")
		_ = handshake.WriteHelloAck(nc, ack)
		_ = nc.Close()
		return
	}

	c := &conn{owner: p, remoteID: hello.PeerID, cancel: func() {}}
	c.attach(nc, reader)
	if !p.track(c) {
		_ = nc.Close()
		return
	}
	if err := handshake.WriteHelloAck(nc, ack); err != nil {
		p.log.Warn().Err(err).Str("remote", remote).Msg("tcpnet.handleInbound write ack failed")
		p.untrack(c)
		_ = nc.Close()
		return
	}
	if err := nc.SetDeadline(time.Time{}); err != nil {
		p.log.Warn().Err(err).Msg("tcpnet.handleInbound clear deadline")
	}
	p.log.Debug().Str("remote_id", hello.PeerID).Str("remote", remote).Msg("tcpnet.handleInbound accepted")

	p.mbox.Push(transport.Event{Kind: transport.EventInbound, Conn: c})
	p.mbox.Push(transport.Event{Kind: transport.EventOpen, Conn: c})
	go c.readLoop()
}

func (p *Peer) handleHello(reader *bufio.Reader, localID string) (handshake.Hello, handshake.HelloAck) {
	now := uint64(time.Now().UnixMilli())
	ack := handshake.HelloAck{
		Status:      handshake.AckStatusAccepted,
		Code:        handshake.CodeOK,
		PeerID:      localID,
		TimestampMS: now,
	}

	hello, err := handshake.ReadHello(reader)
	switch {
	case err != nil:
		ack.Status = handshake.AckStatusRejected
		ack.Code = handshake.CodeInvalidHello
		ack.Message = "invalid hello payload"
	case hello.Version != handshake.ProtocolVersion:
		ack.Status = handshake.AckStatusRejected
		ack.Code = handshake.CodeVersionMismatch
		ack.Message = fmt.Sprintf("unsupported protocol version %d", hello.Version)
	case hello.Target != localID:
		ack.Status = handshake.AckStatusRejected
		ack.Code = handshake.CodeUnknownTarget
		ack.Message = "no peer with that identity"
	}
	return hello, ack
}

// tcpnet dial path for one outbound handle.
func (p *Peer) dial(ctx context.Context, c *conn, addr, localID string) {
	dialer := net.Dialer{Timeout: p.cfg.DialTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		p.fail(c, fmt.Errorf("%w: dial %s: %v", transport.ErrPeerUnavailable, addr, err))
		return
	}
	_ = nc.SetDeadline(time.Now().Add(p.cfg.HandshakeTimeout))

	hello := handshake.Hello{PeerID: localID, Target: c.remoteID, Version: handshake.ProtocolVersion}
	if err := handshake.WriteHello(nc, hello); err != nil {
		_ = nc.Close()
		p.fail(c, fmt.Errorf("%w: write hello: %v", transport.ErrPeerUnavailable, err))
		return
	}
	reader := bufio.NewReader(nc)
	ack, err := handshake.ReadHelloAck(reader)
	if err != nil {
		_ = nc.Close()
		p.fail(c, fmt.Errorf("%w: read hello ack: %v", transport.ErrPeerUnavailable, err))
		return
	}
	if !ack.Accepted() {
		_ = nc.Close()
		p.fail(c, fmt.Errorf("%w: code=%d %s", transport.ErrRejected, ack.Code, ack.Message))
		return
	}
	if err := nc.SetDeadline(time.Time{}); err != nil {
		p.log.Warn().Err(err).Msg("tcpnet.dial clear deadline")
	}
	if !c.attach(nc, reader) {
		_ = nc.Close()
		return
	}
	p.log.Debug().Str("remote_id", c.remoteID).Msg("tcpnet.dial opened")
	p.mbox.Push(transport.Event{Kind: transport.EventOpen, Conn: c})
	go c.readLoop()
}

// fail reports a dial failure unless the handle was already closed locally.
func (p *Peer) fail(c *conn, err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	p.untrack(c)
	p.log.Warn().Err(err).Str("remote_id", c.remoteID).Msg("tcpnet.dial failed")
	p.mbox.Push(transport.Event{
		Kind:  transport.EventError,
		Conn:  c,
		Err:   err,
		Fatal: transport.IsFatal(err),
	})
}

// tcpnet connection-tracking add operation for coordinated shutdown.
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
