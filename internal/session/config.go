package session

import "github.com/rs/zerolog"

// Config wires optional behavior into a session. The zero value starts a host.
type Config struct {
	// Target makes the session a client of the peer with this identity.
	Target string

	// OnSync is called once per applied remote SYNC with the decoded value.
	OnSync func(v any)
	// OnStatus is called after every status transition.
	OnStatus func(Status)
	// Accept converts a decoded remote value before it replaces local data.
	// Returning an error drops the envelope as a CodecError.
	Accept func(v any) (any, error)

	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}
