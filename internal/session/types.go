package session

import "fmt"

type Role uint8

const (
	RoleHost Role = iota + 1
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

type Status uint8

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// State is a point-in-time copy of the session's observable state.
type State struct {
	Data     any
	Status   Status
	LocalID  string
	RemoteID string
	Err      error
}
