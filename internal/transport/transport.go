// Package transport is the boundary between the session engine and a
// point-to-point transport. A Peer registers a local identity, opens or
// accepts connections, and reports everything that happens to it on a single
// ordered event stream.
package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrPeerUnavailable = errors.New("transport: peer unavailable")
	ErrIdentityTaken   = errors.New("transport: identity already registered")
	ErrRejected        = errors.New("transport: connection rejected")
	ErrClosed          = errors.New("transport: closed")
	ErrNotOpen         = errors.New("transport: connection not open")
	ErrNotStarted      = errors.New("transport: peer not started")
)

type EventKind uint8

const (
	// EventIdentity reports the local identity once the peer is registered.
	EventIdentity EventKind = iota + 1
	// EventInbound delivers a connection a remote peer opened to us.
	EventInbound
	// EventOpen reports that Conn can carry data.
	EventOpen
	// EventData carries one message received on Conn.
	EventData
	// EventClose reports that Conn was closed by the remote side or failed.
	EventClose
	// EventError reports a transport error, optionally tied to Conn.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventIdentity:
		return "identity"
	case EventInbound:
		return "inbound"
	case EventOpen:
		return "open"
	case EventData:
		return "data"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is one entry on a Peer's event stream.
type Event struct {
	Kind  EventKind
	ID    string
	Conn  Conn
	Data  []byte
	Err   error
	Fatal bool
}

// Conn is one bidirectional message channel to a remote peer.
type Conn interface {
	RemoteID() string
	Send(msg []byte) error
	Close() error
}

// Peer is a local endpoint on a transport.
//
// Start registers the local identity; an empty id asks the transport to assign
// one. Connect returns a handle immediately and reports the outcome later as
// EventOpen or a fatal EventError for that handle. Events are delivered in the
// order they happened and the channel is closed after Close.
type Peer interface {
	Start(ctx context.Context, id string) error
	Events() <-chan Event
	Connect(ctx context.Context, target string) (Conn, error)
	Close() error
}

// IsFatal reports whether err ends any chance of the connection opening.
func IsFatal(err error) bool {
	return errors.Is(err, ErrPeerUnavailable) ||
		errors.Is(err, ErrIdentityTaken) ||
		errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrNotStarted)
}
