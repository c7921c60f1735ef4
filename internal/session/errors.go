package session

import (
	"errors"
	"fmt"
)

var (
	ErrSessionClosed = errors.New("session: closed")
	ErrNilPeer       = errors.New("session: nil transport peer")
)

// TransportError is a failure reported by, or returned from, the transport.
// Fatal errors force the session into StatusDisconnected.
type TransportError struct {
	Op    string
	Fatal bool
	Err   error
}

func (e *TransportError) Error() string {
	kind := "non-fatal"
	if e.Fatal {
		kind = "fatal"
	}
	return fmt.Sprintf("session: transport %s (%s): %v", e.Op, kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CodecError reports an inbound envelope that could not be decoded or
// accepted. The envelope is dropped and the connection stays up.
type CodecError struct {
	Seq uint64
	Err error
}

func (e *CodecError) Error() string {
	if e.Seq == 0 {
		return fmt.Sprintf("session: decode inbound envelope: %v", e.Err)
	}
	return fmt.Sprintf("session: decode inbound envelope seq=%d: %v", e.Seq, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// SubmitError reports a local submission that could not be encoded or sent.
// Local data keeps the submitted value.
type SubmitError struct {
	Seq uint64
	Err error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("session: submit seq=%d: %v", e.Seq, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}
