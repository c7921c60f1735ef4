// Package frame implements the length-delimited wire frame used by stream
// transports to carry opaque peer messages.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Header layout, big endian:
//
//	magic(4) version(2) type(2) message_id(8) payload_len(8)
const (
	Magic     uint32 = 0x57415250 // "WARP"
	Version   uint16 = 1
	HeaderLen        = 24
)

// Frame types.
const (
	TypeData    uint16 = 1
	TypeGoodbye uint16 = 2
)

var (
	ErrShortHeader     = errors.New("frame: short header")
	ErrBadMagic        = errors.New("frame: bad magic")
	ErrBadVersion      = errors.New("frame: unsupported version")
	ErrUnknownType     = errors.New("frame: unknown frame type")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

type Header struct {
	Magic      uint32
	Version    uint16
	Type       uint16
	MessageID  uint64
	PayloadLen uint64
}

type Frame struct {
	Header  Header
	Payload []byte
}

// Limits bounds the memory a single frame may claim.
type Limits struct {
	MaxPayloadBytes uint64
}

// DefaultLimits leaves room for state values carrying several megabytes of
// base64 attachment content.
func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 32 * 1024 * 1024}
}

func knownType(t uint16) bool {
	return t == TypeData || t == TypeGoodbye
}

// ReadFrame reads one frame. A stream that ends cleanly between frames
// returns io.EOF.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [HeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	switch {
	case h.Magic != Magic:
		return Frame{}, ErrBadMagic
	case h.Version != Version:
		return Frame{}, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	case !knownType(h.Type):
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownType, h.Type)
	case h.PayloadLen > limits.MaxPayloadBytes:
		return Frame{}, ErrPayloadTooLarge
	}

	payload := make([]byte, h.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, fmt.Errorf("frame: read payload: %w", err)
	}
	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame stamps magic, version and length, then writes the frame with a
// single Write call.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	if !knownType(f.Header.Type) {
		return fmt.Errorf("%w: %d", ErrUnknownType, f.Header.Type)
	}
	if uint64(len(f.Payload)) > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.PayloadLen = uint64(len(f.Payload))

	buf := make([]byte, 0, HeaderLen+len(f.Payload))
	buf = append(buf, EncodeHeader(h)...)
	buf = append(buf, f.Payload...)
	_, err := w.Write(buf)
	return err
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Type)
	binary.BigEndian.PutUint64(buf[8:16], h.MessageID)
	binary.BigEndian.PutUint64(buf[16:24], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, fmt.Errorf("frame: invalid header length: %d", len(b))
	}
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Type:       binary.BigEndian.Uint16(b[6:8]),
		MessageID:  binary.BigEndian.Uint64(b[8:16]),
		PayloadLen: binary.BigEndian.Uint64(b[16:24]),
	}, nil
}
