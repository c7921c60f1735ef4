package warp

import (
	"github.com/danmuck/statewarp/internal/codec"
	"github.com/danmuck/statewarp/internal/session"
	"github.com/danmuck/statewarp/internal/transport"
	"github.com/danmuck/statewarp/internal/transport/memnet"
	"github.com/danmuck/statewarp/internal/transport/tcpnet"
	"github.com/rs/zerolog"
)

type (
	// Data constrains the shapes a synchronized value may take.
	Data       = codec.Data
	Attachment = codec.Attachment

	Status = session.Status
	Role   = session.Role

	TransportError = session.TransportError
	CodecError     = session.CodecError
	SubmitError    = session.SubmitError

	Peer       = transport.Peer
	TCPConfig  = tcpnet.Config
	MemNetwork = memnet.Network
)

const (
	StatusIdle         = session.StatusIdle
	StatusConnecting   = session.StatusConnecting
	StatusConnected    = session.StatusConnected
	StatusDisconnected = session.StatusDisconnected

	RoleHost   = session.RoleHost
	RoleClient = session.RoleClient
)

var (
	ErrSessionClosed   = session.ErrSessionClosed
	ErrUnsupportedType = codec.ErrUnsupportedType
	ErrReservedKey     = codec.ErrReservedKey

	NewAttachment  = codec.NewAttachment
	FileAttachment = codec.FileAttachment
)

// Options configures a session. The zero value starts a host.
type Options[T Data] struct {
	// Target is the host identity to join; empty starts a host.
	Target string
	// OnSync observes every value applied from the remote peer.
	OnSync func(v T)
	// OnStatus observes connection status transitions.
	OnStatus func(st Status)
	Logger   *zerolog.Logger
}

// State is a snapshot of a session.
type State[T Data] struct {
	Data     T
	Status   Status
	LocalID  string
	RemoteID string
	Err      error
}

func DefaultTCPConfig() TCPConfig {
	return tcpnet.DefaultConfig()
}

// NewTCPPeer returns a direct TCP transport peer.
func NewTCPPeer(cfg TCPConfig) Peer {
	return tcpnet.New(cfg)
}

// NewMemNetwork returns an in-process network; peers on it reach each other
// without sockets.
func NewMemNetwork() *MemNetwork {
	return memnet.NewNetwork()
}
