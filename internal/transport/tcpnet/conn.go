package tcpnet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/statewarp/internal/protocol/frame"
	"github.com/danmuck/statewarp/internal/transport"
)

const goodbyeTimeout = 250 * time.Millisecond

type conn struct {
	owner    *Peer
	remoteID string
	cancel   context.CancelFunc
	closed   atomic.Bool

	mu     sync.Mutex
	nc     net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
	nextID  uint64
}

func (c *conn) RemoteID() string {
	return c.remoteID
}

// attach binds an established socket. It reports false when the handle was
// closed while dialing.
func (c *conn) attach(nc net.Conn, reader *bufio.Reader) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return false
	}
	c.nc = nc
	c.reader = reader
	return true
}

func (c *conn) socket() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nc
}

func (c *conn) Send(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	nc := c.socket()
	if c.closed.Load() || nc == nil {
		return transport.ErrNotOpen
	}
	c.nextID++
	_ = nc.SetWriteDeadline(time.Now().Add(c.owner.cfg.WriteTimeout))
	err := frame.WriteFrame(nc, frame.Frame{
		Header: frame.Header{
			Type:      frame.TypeData,
			MessageID: c.nextID,
		},
		Payload: msg,
	}, c.owner.cfg.Limits)
	if err != nil {
		// A failed write may leave a partial frame on the wire.
		err = fmt.Errorf("tcpnet: send: %w", err)
		c.abort(nc, err)
		return err
	}
	return nil
}

// Close says goodbye to the remote and tears the socket down without
// reporting EventClose locally.
func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	c.owner.untrack(c)
	nc := c.socket()
	if nc == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = nc.SetWriteDeadline(time.Now().Add(goodbyeTimeout))
	_ = frame.WriteFrame(nc, frame.Frame{Header: frame.Header{Type: frame.TypeGoodbye}}, c.owner.cfg.Limits)
	c.writeMu.Unlock()
	return nc.Close()
}

func (c *conn) readLoop() {
	c.mu.Lock()
	nc, reader := c.nc, c.reader
	c.mu.Unlock()
	for {
		fr, err := frame.ReadFrame(reader, c.owner.cfg.Limits)
		if err == nil && fr.Header.Type == frame.TypeGoodbye {
			err = io.EOF
		}
		if err != nil {
			var cause error
			if !errors.Is(err, io.EOF) {
				cause = fmt.Errorf("tcpnet: read: %w", err)
			}
			c.abort(nc, cause)
			return
		}
		c.owner.mbox.Push(transport.Event{Kind: transport.EventData, Conn: c, Data: fr.Payload})
	}
}

// abort closes the socket after a read or write failure and reports
// EventClose locally with cause. Only the first teardown reports.
func (c *conn) abort(nc net.Conn, cause error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.cancel()
	c.owner.untrack(c)
	_ = nc.Close()
	c.owner.log.Debug().Err(cause).Str("remote_id", c.remoteID).Msg("tcpnet.conn aborted")
	c.owner.mbox.Push(transport.Event{Kind: transport.EventClose, Conn: c, Err: cause})
}
